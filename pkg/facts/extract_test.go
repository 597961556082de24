package facts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Kind
	}{
		{name: "response time", raw: map[string]any{"title": "Response Time", "value": "1 ms"}, want: KindResponseTime},
		{name: "substring match", raw: map[string]any{"title": "Login Response Time (p95)", "value": "1 ms"}, want: KindResponseTime},
		{name: "issue", raw: map[string]any{"title": "JIRA Issue", "value": "NH-1"}, want: KindIssue},
		{name: "severity", raw: map[string]any{"title": "Severity", "value": "critical"}, want: KindSeverity},
		{name: "request payload", raw: map[string]any{"title": "Request Payload", "value": "undefined"}, want: KindRequestPayload},
		{name: "case sensitive", raw: map[string]any{"title": "response time", "value": "1 ms"}, want: KindOpaque},
		{name: "unknown title", raw: map[string]any{"title": "Response Body", "value": "{}"}, want: KindOpaque},
		{name: "no title", raw: map[string]any{"value": "x"}, want: KindOpaque},
		{name: "plain string", raw: "Error: socket hang up", want: KindOpaque},
		{name: "number", raw: float64(3), want: KindOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.raw).Kind)
		})
	}
}

func TestParseContext(t *testing.T) {
	assert.Nil(t, ParseContext(nil))

	list := ParseContext(strPtr(`[{"title":"Severity","value":"major"},"free text"]`))
	require.Len(t, list, 2)
	assert.Equal(t, KindSeverity, list[0].Kind)
	assert.Equal(t, KindOpaque, list[1].Kind)

	single := ParseContext(strPtr(`{"title":"JIRA Issue","value":"nh-570"}`))
	require.Len(t, single, 1)
	assert.Equal(t, KindIssue, single[0].Kind)

	notJSON := ParseContext(strPtr(`plain text context`))
	require.Len(t, notJSON, 1)
	assert.Equal(t, KindOpaque, notJSON[0].Kind)
	assert.Equal(t, "plain text context", notJSON[0].Value)
}

func TestExtract_LastRecordedWins(t *testing.T) {
	annotations := ParseContext(strPtr(`[
		{"title": "Response Time", "value": "50 ms"},
		{"title": "Severity", "value": "minor"},
		{"title": "Response Time", "value": "120 ms"}
	]`))

	f := Extract(annotations)
	require.NotNil(t, f.ResponseTime)
	assert.Equal(t, "120", *f.ResponseTime)
	require.NotNil(t, f.Severity)
	assert.Equal(t, "minor", *f.Severity)
	assert.Nil(t, f.IssueID)
	assert.Nil(t, f.UserAgent)
}

func TestExtract_AllFacts(t *testing.T) {
	annotations := ParseContext(strPtr(`[
		{"title": "JIRA Issue", "value": "NH-1"},
		{"title": "Request Payload", "value": {"method": "POST", "url": "/login",
			"headers": {"User-Agent": "old-agent"}}},
		{"title": "Severity", "value": "blocker"},
		{"title": "JIRA Issue", "value": "NH-2"},
		{"title": "Request Payload", "value": "{\"headers\":{\"user-agent\":\"axios/1.6\"}}"},
		{"title": "Response Time", "value": "87 ms"},
		{"title": "Request Payload", "value": "undefined"}
	]`))

	f := Extract(annotations)
	require.NotNil(t, f.ResponseTime)
	require.NotNil(t, f.IssueID)
	require.NotNil(t, f.Severity)
	require.NotNil(t, f.UserAgent)

	assert.Equal(t, "87", *f.ResponseTime)
	assert.Equal(t, "NH-2", *f.IssueID)
	assert.Equal(t, "blocker", *f.Severity)
	assert.Equal(t, "axios/1.6", *f.UserAgent, "undefined payloads are skipped")
}

func TestExtract_Empty(t *testing.T) {
	assert.Equal(t, Facts{}, Extract(nil))
}

func TestDecodeRequestPayload(t *testing.T) {
	p, err := DecodeRequestPayload("undefined")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = DecodeRequestPayload(map[string]any{
		"method":  "GET",
		"url":     "https://api.example.com/v1/loans",
		"headers": map[string]any{"user-agent": "got"},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "GET", p.Method)
	assert.Equal(t, "got", p.Headers["user-agent"])

	_, err = DecodeRequestPayload("not json")
	assert.Error(t, err)

	_, err = DecodeRequestPayload([]any{"x"})
	assert.Error(t, err)
}

func TestNormalizeIssueID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "nh-570", want: "NH-570"},
		{in: "  NH-570  ", want: "NH-570"},
		{in: "NH570", want: "NH-570"},
		{in: "nh_570", want: "NH-570"},
		{in: "NH 570", want: "NH-570"},
		{in: "ABC-12-34", wantErr: true},
		{in: "PROJ2-100", wantErr: true},
		{in: "570-NH", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeIssueID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrAmbiguousIssueID))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
