package facts

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/report"
)

// Result statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusPending = "pending"
	StatusBroken  = "broken"
)

// Test types derived from title tags.
const (
	TypeSmoke    = "smoke"
	TypeNegative = "negative"
)

// DefaultSeverity is stored when a test recorded no severity.
const DefaultSeverity = "-"

const (
	tagSmoke    = "#smoke"
	tagNegative = "#negative"
	tagManual   = "#manual"

	assertionError = "AssertionError"
)

// Outcome is everything a result row needs that is derived from one test.
type Outcome struct {
	Facts Facts
	// IssueID is the normalized issue id, nil when none was recorded or
	// the recorded one could not be normalized (see IssueErr).
	IssueID  *string
	IssueErr error

	Type      *string
	Manual    bool
	Severity  string
	UserAgent string
	Status    string
	// Context is the raw annotation trail, or the serialized error when
	// the test recorded no context.
	Context string
}

// Derive computes the outcome of one test. defaultUserAgent is used when
// no request payload with a user agent was recorded.
func Derive(t *report.Test, defaultUserAgent string) Outcome {
	f := Extract(ParseContext(t.Context))

	out := Outcome{
		Facts:     f,
		Manual:    strings.Contains(t.Title, tagManual),
		Severity:  DefaultSeverity,
		UserAgent: defaultUserAgent,
	}

	if f.IssueID != nil {
		id, err := NormalizeIssueID(*f.IssueID)
		if err != nil {
			out.IssueErr = err
		} else {
			out.IssueID = &id
		}
	}

	if f.Severity != nil {
		out.Severity = *f.Severity
	}

	if f.UserAgent != nil {
		out.UserAgent = *f.UserAgent
	}

	out.Type = testType(t.FullTitle)
	out.Status = Status(t, out.Manual)
	out.Context = contextBlob(t)

	return out
}

func testType(fullTitle string) *string {
	var typ string

	switch {
	case strings.Contains(fullTitle, tagSmoke):
		typ = TypeSmoke
	case strings.Contains(fullTitle, tagNegative):
		typ = TypeNegative
	default:
		return nil
	}

	return &typ
}

// Status applies the status precedence: skipped, pending and manual tests
// are pending; failures raised by the assertion library are failed; any
// other non-passing test is broken; everything else keeps its own state.
func Status(t *report.Test, manual bool) string {
	state := ""
	if t.State != nil {
		state = *t.State
	}

	switch {
	case t.Skipped || t.Pending || manual || state == StatusSkipped:
		return StatusPending
	case t.Fail && isAssertionError(t.Err):
		return StatusFailed
	case !t.Pass:
		return StatusBroken
	case state == "":
		return StatusPassed
	default:
		return state
	}
}

func isAssertionError(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var e struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		EStack  string `json:"estack"`
	}

	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}

	return strings.Contains(e.Name, assertionError) ||
		strings.Contains(e.Message, assertionError) ||
		strings.Contains(e.EStack, assertionError)
}

func contextBlob(t *report.Test) string {
	if t.Context != nil {
		return *t.Context
	}

	if len(t.Err) == 0 {
		return "{}"
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, t.Err); err != nil {
		return string(t.Err)
	}

	return buf.String()
}
