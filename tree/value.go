package tree

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// normalize converts v into the generic form encoding/json decodes to, so that values
// touched in memory and values loaded from disk compare equal.
func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "leaf value is not JSON-serializable")
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "leaf value did not round-trip through JSON")
	}
	return out, nil
}

// cloneValue deep-copies a normalized value. Scalars are immutable and returned as is.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
