// Package facts turns the free-text annotation trail a test records with
// addContext into structured facts: response time, issue id, severity and
// the captured client user agent.
package facts

import (
	"encoding/json"
	"strings"
)

// Kind identifies what an annotation carries.
type Kind int

// Annotation kinds.
const (
	KindOpaque Kind = iota
	KindResponseTime
	KindIssue
	KindSeverity
	KindRequestPayload
)

func (k Kind) String() string {
	switch k {
	case KindResponseTime:
		return "response_time"
	case KindIssue:
		return "issue"
	case KindSeverity:
		return "severity"
	case KindRequestPayload:
		return "request_payload"
	default:
		return "opaque"
	}
}

// titlePatterns are matched against annotation titles, case-sensitive,
// in this order.
var titlePatterns = []struct {
	pattern string
	kind    Kind
}{
	{"Response Time", KindResponseTime},
	{"JIRA Issue", KindIssue},
	{"Severity", KindSeverity},
	{"Request Payload", KindRequestPayload},
}

// Annotation is one classified entry of a test's context trail.
type Annotation struct {
	Kind  Kind
	Title string
	Value any
}

// Classify maps one decoded context entry onto an Annotation. Entries that
// are not {title, value} objects are opaque.
func Classify(raw any) Annotation {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Annotation{Kind: KindOpaque, Value: raw}
	}

	title, ok := obj["title"].(string)
	if !ok {
		return Annotation{Kind: KindOpaque, Value: raw}
	}

	for _, p := range titlePatterns {
		if strings.Contains(title, p.pattern) {
			return Annotation{Kind: p.kind, Title: title, Value: obj["value"]}
		}
	}

	return Annotation{Kind: KindOpaque, Title: title, Value: obj["value"]}
}

// ParseContext decodes the JSON context string of a test. An array yields
// one annotation per element; any other JSON value yields one annotation.
// A context that is not JSON at all becomes a single opaque annotation.
func ParseContext(raw *string) []Annotation {
	if raw == nil {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(*raw), &decoded); err != nil {
		return []Annotation{{Kind: KindOpaque, Value: *raw}}
	}

	list, ok := decoded.([]any)
	if !ok {
		return []Annotation{Classify(decoded)}
	}

	annotations := make([]Annotation, 0, len(list))
	for _, entry := range list {
		annotations = append(annotations, Classify(entry))
	}

	return annotations
}
