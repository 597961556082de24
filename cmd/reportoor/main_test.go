package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/ingest"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing env", err: &config.MissingEnvError{Vars: []string{"ENV"}}, want: -1},
		{name: "unknown tester", err: fmt.Errorf("%w %q", ingest.ErrUnknownTester, "mallory"), want: -1},
		{name: "duplicate report", err: fmt.Errorf("checksum abc: %w", ingest.ErrDuplicateReport), want: -1},
		{name: "other failure", err: errors.New("connection refused"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel logrus.Level
		wantMsg   string
		wantCode  int
	}{
		{
			name:      "duplicate report",
			err:       fmt.Errorf("checksum abc: %w", ingest.ErrDuplicateReport),
			wantLevel: logrus.InfoLevel,
			wantMsg:   "Report already ingested, nothing to do",
			wantCode:  -1,
		},
		{
			name:      "unknown tester",
			err:       fmt.Errorf("%w %q", ingest.ErrUnknownTester, "mallory"),
			wantLevel: logrus.ErrorLevel,
			wantMsg:   "Command failed",
			wantCode:  -1,
		},
		{
			name:      "other failure",
			err:       errors.New("connection refused"),
			wantLevel: logrus.ErrorLevel,
			wantMsg:   "Command failed",
			wantCode:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()

			assert.Equal(t, tt.wantCode, reportFailure(logger, tt.err))

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Len(t, hook.Entries, 1)
		})
	}
}
