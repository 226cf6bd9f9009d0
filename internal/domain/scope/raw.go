package scope

import (
	"encoding/json"
	"strings"
)

// RawList is a scope field as submitted by clients: either a JSON string or a JSON array.
// Arrays keep their JSON text so the stored value round-trips through ParseScopeList.
type RawList string

// UnmarshalJSON accepts a string, an array or null
func (r *RawList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*r = ""
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawList(s)
		return nil
	default:
		var values []interface{}
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*r = RawList(trimmed)
		return nil
	}
}

// String returns the stored encoding
func (r RawList) String() string {
	return string(r)
}
