// Package report decodes mochawesome JSON reports and computes the
// content checksum used to detect re-ingestion of the same run.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNoServiceSegment is returned when a suite file path does not follow
// the test/<category>/<service>/... layout.
var ErrNoServiceSegment = errors.New("suite file has no service segment")

// ErrInvalidUTF8 is returned for a report that is not valid UTF-8. Decoding
// would replace the bad bytes and give distinct reports the same checksum.
var ErrInvalidUTF8 = errors.New("report is not valid UTF-8")

// serviceSegment is the path index holding the service name.
const serviceSegment = 2

// Document is a parsed report together with its checksum.
type Document struct {
	Report   Report
	Checksum string
}

// Report is the top-level mochawesome document.
type Report struct {
	Stats   Stats    `json:"stats"`
	Results []Result `json:"results"`
}

// Stats holds the run timestamps.
type Stats struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Result is one root suite; mochawesome writes exactly one.
type Result struct {
	Suites []Suite `json:"suites"`
}

// Suite is a describe block. Top-level suites carry the source file.
type Suite struct {
	File        string  `json:"file"`
	Title       string  `json:"title"`
	Duration    int64   `json:"duration"`
	BeforeHooks []Hook  `json:"beforeHooks"`
	AfterHooks  []Hook  `json:"afterHooks"`
	Suites      []Suite `json:"suites"`
	Tests       []Test  `json:"tests"`
}

// Hook is a before/after hook execution.
type Hook struct {
	Duration int64 `json:"duration"`
}

// Test is a single test case outcome.
type Test struct {
	Title     string  `json:"title"`
	FullTitle string  `json:"fullTitle"`
	State     *string `json:"state"`
	Duration  int64   `json:"duration"`
	Pass      bool    `json:"pass"`
	Fail      bool    `json:"fail"`
	Pending   bool    `json:"pending"`
	Skipped   bool    `json:"skipped"`
	// Context is the JSON-encoded annotation trail written by addContext.
	Context *string         `json:"context"`
	Err     json.RawMessage `json:"err"`
}

// Parse decodes a report and computes its checksum.
func Parse(data []byte) (*Document, error) {
	sum, err := Checksum(data)
	if err != nil {
		return nil, err
	}

	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}

	return &Document{Report: rep, Checksum: sum}, nil
}

// Checksum returns the hex sha256 of the canonical serialization of data.
// Objects are re-encoded with sorted keys and no insignificant whitespace,
// so formatting differences do not change the checksum.
func Checksum(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return "", fmt.Errorf("decoding report: %w", err)
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(tree); err != nil {
		return "", fmt.Errorf("encoding canonical report: %w", err)
	}

	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))

	return hex.EncodeToString(sum[:]), nil
}

// Suites returns the top-level suites of the report.
func (d *Document) Suites() []Suite {
	if len(d.Report.Results) == 0 {
		return nil
	}

	return d.Report.Results[0].Suites
}

// AllTests returns the suite's own tests followed by the tests of its
// nested suites, depth first in document order.
func (s *Suite) AllTests() []Test {
	tests := make([]Test, 0, len(s.Tests))
	tests = append(tests, s.Tests...)

	for i := range s.Suites {
		tests = append(tests, s.Suites[i].AllTests()...)
	}

	return tests
}

// HookDurations returns the summed before-hook and after-hook durations.
func (s *Suite) HookDurations() (before, after int64) {
	for _, h := range s.BeforeHooks {
		before += h.Duration
	}

	for _, h := range s.AfterHooks {
		after += h.Duration
	}

	return before, after
}

// ServiceName derives the lowercased service name from a suite file path
// laid out as test/<category>/<service>/....
func ServiceName(file string) (string, error) {
	p := strings.ReplaceAll(file, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")

	segments := strings.Split(p, "/")
	if len(segments) <= serviceSegment || segments[serviceSegment] == "" {
		return "", fmt.Errorf("%w: %q", ErrNoServiceSegment, file)
	}

	return strings.ToLower(segments[serviceSegment]), nil
}
