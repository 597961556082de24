package facts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/report"
)

func TestStatus(t *testing.T) {
	assertion := json.RawMessage(`{"message":"AssertionError: expected 200 to equal 201"}`)
	timeout := json.RawMessage(`{"message":"Timeout of 2000ms exceeded."}`)

	tests := []struct {
		name   string
		test   report.Test
		manual bool
		want   string
	}{
		{
			name: "passed keeps state",
			test: report.Test{State: strPtr("passed"), Pass: true},
			want: StatusPassed,
		},
		{
			name: "pending wins over fail and context",
			test: report.Test{Pending: true, Fail: true, Err: assertion, Context: strPtr(`[]`)},
			want: StatusPending,
		},
		{
			name: "skipped flag",
			test: report.Test{Skipped: true},
			want: StatusPending,
		},
		{
			name: "skipped state",
			test: report.Test{State: strPtr("skipped")},
			want: StatusPending,
		},
		{
			name:   "manual wins over pass",
			test:   report.Test{State: strPtr("passed"), Pass: true},
			manual: true,
			want:   StatusPending,
		},
		{
			name: "assertion failure",
			test: report.Test{State: strPtr("failed"), Fail: true, Err: assertion},
			want: StatusFailed,
		},
		{
			name: "assertion in estack",
			test: report.Test{State: strPtr("failed"), Fail: true,
				Err: json.RawMessage(`{"message":"boom","estack":"AssertionError: boom\n at x"}`)},
			want: StatusFailed,
		},
		{
			name: "non assertion failure is broken",
			test: report.Test{State: strPtr("failed"), Fail: true, Err: timeout},
			want: StatusBroken,
		},
		{
			name: "null state not passed is broken",
			test: report.Test{},
			want: StatusBroken,
		},
		{
			name: "null state passed",
			test: report.Test{Pass: true},
			want: StatusPassed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(&tt.test, tt.manual))
		})
	}
}

func TestDerive(t *testing.T) {
	test := report.Test{
		Title:     "applies for a loan #manual",
		FullTitle: "Loans #smoke applies for a loan #manual",
		State:     strPtr("passed"),
		Pass:      true,
		Context: strPtr(`[{"title":"JIRA Issue","value":" nh-570 "},` +
			`{"title":"Request Payload","value":{"headers":{"user-agent":"supertest"}}},` +
			`{"title":"Response Time","value":"312 ms"}]`),
	}

	out := Derive(&test, "unknown")

	require.NotNil(t, out.IssueID)
	assert.Equal(t, "NH-570", *out.IssueID)
	assert.NoError(t, out.IssueErr)
	require.NotNil(t, out.Type)
	assert.Equal(t, TypeSmoke, *out.Type)
	assert.True(t, out.Manual)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, DefaultSeverity, out.Severity)
	assert.Equal(t, "supertest", out.UserAgent)
	require.NotNil(t, out.Facts.ResponseTime)
	assert.Equal(t, "312", *out.Facts.ResponseTime)
	assert.Equal(t, *test.Context, out.Context)
}

func TestDerive_NoContext(t *testing.T) {
	test := report.Test{
		Title:     "rejects empty pan",
		FullTitle: "KYC #negative rejects empty pan",
		State:     strPtr("failed"),
		Fail:      true,
		Err:       json.RawMessage("{\n  \"message\": \"ECONNREFUSED\"\n}"),
	}

	out := Derive(&test, "unknown")

	assert.Equal(t, Facts{}, out.Facts)
	assert.Nil(t, out.IssueID)
	require.NotNil(t, out.Type)
	assert.Equal(t, TypeNegative, *out.Type)
	assert.False(t, out.Manual)
	assert.Equal(t, StatusBroken, out.Status)
	assert.Equal(t, "unknown", out.UserAgent)
	assert.Equal(t, `{"message":"ECONNREFUSED"}`, out.Context)
}

func TestDerive_AmbiguousIssue(t *testing.T) {
	test := report.Test{
		Title:   "x",
		Pass:    true,
		Context: strPtr(`[{"title":"JIRA Issue","value":"AB-1-2"}]`),
	}

	out := Derive(&test, "unknown")

	assert.Nil(t, out.IssueID)
	assert.ErrorIs(t, out.IssueErr, ErrAmbiguousIssueID)
	assert.Nil(t, out.Type)
}
