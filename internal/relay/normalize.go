package relay

import (
	"encoding/json"
	"fmt"
)

// RollCount is the fixed size of every presence sequence.
const RollCount = 100

// Submission is an attendance submission as received from a client. The
// flag and presence fields hold decoded JSON values of any type.
type Submission struct {
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Regular  any    `json:"regular"`
	Extra    any    `json:"extra"`
	Presence []any  `json:"presentMatrix"`
}

// Payload is the body posted to a teacher's webhook.
type Payload struct {
	Secret        string   `json:"secret"`
	Subject       string   `json:"subject"`
	Date          string   `json:"date"`
	Regular       int      `json:"regular"`
	Extra         int      `json:"extra"`
	PresentMatrix []string `json:"presentMatrix"`
}

// NormalizePresence returns exactly RollCount "0"/"1" entries. Sequences
// shorter than RollCount are replaced wholesale by all-absent; longer ones
// are truncated.
func NormalizePresence(raw []any) []string {
	out := make([]string, RollCount)
	if len(raw) < RollCount {
		for i := range out {
			out[i] = "0"
		}
		return out
	}
	for i := range out {
		if isPresent(raw[i]) {
			out[i] = "1"
		} else {
			out[i] = "0"
		}
	}
	return out
}

// isPresent accepts true, numeric 1 and the string "1".
func isPresent(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "1"
	case float64:
		return x == 1
	case float32:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 1
	default:
		return false
	}
}

// Flag coerces a lecture-type flag to 0 or 1. Any non-empty string is set.
func Flag(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		return boolInt(x)
	case string:
		return boolInt(x != "")
	case float64:
		return boolInt(x != 0)
	case int:
		return boolInt(x != 0)
	case int64:
		return boolInt(x != 0)
	case json.Number:
		f, err := x.Float64()
		return boolInt(err == nil && f != 0)
	default:
		return 1
	}
}

// Text coerces a subject or date field to a string. Falsy values give "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if !x {
			return ""
		}
	case float64:
		if x == 0 {
			return ""
		}
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return ""
		}
		return x.String()
	}
	return fmt.Sprint(v)
}

// BuildPayload assembles the outbound webhook body for a submission.
func BuildPayload(secret string, s Submission) Payload {
	return Payload{
		Secret:        secret,
		Subject:       s.Subject,
		Date:          s.Date,
		Regular:       Flag(s.Regular),
		Extra:         Flag(s.Extra),
		PresentMatrix: NormalizePresence(s.Presence),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
