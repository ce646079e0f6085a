package codec

import (
	"regexp"
	"strconv"
)

var saltedValue = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}:(string|number|boolean|null|undefined):(.*)$`)

// UnsaltData returns a copy of tree where every "<uuid>:<type>:<value>" string is replaced by its typed value.
// The input is not modified.
func UnsaltData(tree any) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = UnsaltData(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = UnsaltData(item)
		}
		return out
	case string:
		return unsaltValue(v)
	default:
		return v
	}
}

// UnsaltString unsalts a single string, returning it untouched if it is not salted or not a string
func UnsaltString(s string) string {
	if v, ok := unsaltValue(s).(string); ok {
		return v
	}
	return s
}

func unsaltValue(s string) any {
	m := saltedValue.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	switch m[1] {
	case "number":
		n, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return s
		}
		return n
	case "boolean":
		return m[2] == "true"
	case "null", "undefined":
		return nil
	default:
		return m[2]
	}
}
