package facts

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrAmbiguousIssueID is returned for issue ids that cannot be normalized
// to PREFIX-NUMBER without guessing.
var ErrAmbiguousIssueID = errors.New("ambiguous issue id")

// undefinedPayload is what the test helpers record when no request was sent.
const undefinedPayload = "undefined"

// factKinds is the number of distinct fact kinds Extract looks for.
const factKinds = 4

var (
	canonicalIssue = regexp.MustCompile(`^[A-Z]+-[0-9]+$`)
	spliceIssue    = regexp.MustCompile(`^([A-Z]+)[^A-Z0-9]*([0-9]+)$`)
)

// Facts are the structured values recovered from a context trail. A nil
// field means the fact was not recorded.
type Facts struct {
	ResponseTime *string
	IssueID      *string
	Severity     *string
	UserAgent    *string
}

// RequestPayload is the captured request recorded under "Request Payload".
type RequestPayload struct {
	Method  string         `mapstructure:"method"`
	URL     string         `mapstructure:"url"`
	Headers map[string]any `mapstructure:"headers"`
}

// Extract scans annotations from the most recent one backwards. For every
// kind the first usable annotation wins; the scan stops as soon as all
// kinds are known.
func Extract(annotations []Annotation) Facts {
	var (
		f     Facts
		found int
	)

	for i := len(annotations) - 1; i >= 0 && found < factKinds; i-- {
		a := annotations[i]

		switch a.Kind {
		case KindResponseTime:
			if f.ResponseTime == nil {
				if v, ok := responseTime(a.Value); ok {
					f.ResponseTime = &v
					found++
				}
			}
		case KindIssue:
			if f.IssueID == nil {
				if v, ok := nonEmptyString(a.Value); ok {
					f.IssueID = &v
					found++
				}
			}
		case KindSeverity:
			if f.Severity == nil {
				if v, ok := nonEmptyString(a.Value); ok {
					f.Severity = &v
					found++
				}
			}
		case KindRequestPayload:
			if f.UserAgent == nil {
				if v, ok := userAgent(a.Value); ok {
					f.UserAgent = &v
					found++
				}
			}
		case KindOpaque:
		}
	}

	return f
}

// responseTime keeps the numeric prefix of values like "123 ms".
func responseTime(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return "", false
		}

		head, _, _ := strings.Cut(v, " ")

		return head, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func nonEmptyString(value any) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}

	s = strings.TrimSpace(s)

	return s, s != ""
}

// userAgent returns the user-agent header of a captured request. The
// payload is either an object or a JSON string holding one.
func userAgent(value any) (string, bool) {
	payload, err := DecodeRequestPayload(value)
	if err != nil || payload == nil {
		return "", false
	}

	for name, v := range payload.Headers {
		if !strings.EqualFold(name, "user-agent") {
			continue
		}

		if s, ok := nonEmptyString(v); ok {
			return s, true
		}
	}

	return "", false
}

// DecodeRequestPayload decodes a "Request Payload" annotation value. It
// returns (nil, nil) for the literal "undefined".
func DecodeRequestPayload(value any) (*RequestPayload, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == undefinedPayload {
			return nil, nil
		}

		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("decoding request payload: %w", err)
		}

		value = decoded
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("request payload is %T, not an object", value)
	}

	var payload RequestPayload

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &payload,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating payload decoder: %w", err)
	}

	if err := dec.Decode(obj); err != nil {
		return nil, fmt.Errorf("decoding request payload: %w", err)
	}

	return &payload, nil
}

// NormalizeIssueID trims and uppercases an issue id. Ids already shaped
// PREFIX-NUMBER are returned as is; a single letter run followed by a
// single digit run is joined with one hyphen. Anything else is rejected.
func NormalizeIssueID(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))

	if canonicalIssue.MatchString(id) {
		return id, nil
	}

	m := spliceIssue.FindStringSubmatch(id)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrAmbiguousIssueID, raw)
	}

	return m[1] + "-" + m[2], nil
}
