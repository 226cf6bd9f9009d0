package scope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Encoding identifies which stored representation a scope field used
type Encoding int

const (
	EncodingEmpty Encoding = iota
	EncodingJSONArray
	EncodingJSONScalar
	EncodingScalar
	EncodingCSV
)

// String returns the string representation of the encoding
func (e Encoding) String() string {
	switch e {
	case EncodingJSONArray:
		return "json_array"
	case EncodingJSONScalar:
		return "json_scalar"
	case EncodingScalar:
		return "scalar"
	case EncodingCSV:
		return "csv"
	default:
		return "empty"
	}
}

// AllToken marks an unrestricted scope
const AllToken = "all"

// List is a decoded scope field: normalized tokens plus the encoding they came from
type List struct {
	Tokens   []string
	Encoding Encoding
}

// ParseScopeList decodes a stored scope field. JSON arrays, JSON scalars, bare scalars and
// comma-separated strings are all accepted. Tokens are lowercased with whitespace collapsed;
// empty tokens are dropped.
func ParseScopeList(raw string) List {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return List{Encoding: EncodingEmpty}
	}

	if strings.HasPrefix(raw, "[") {
		var values []interface{}
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			tokens := make([]string, 0, len(values))
			for _, v := range values {
				if v == nil {
					continue
				}
				tokens = appendToken(tokens, fmt.Sprint(v))
			}
			return List{Tokens: tokens, Encoding: EncodingJSONArray}
		}
	}

	if strings.HasPrefix(raw, `"`) {
		var value string
		if err := json.Unmarshal([]byte(raw), &value); err == nil {
			return List{Tokens: appendToken(nil, value), Encoding: EncodingJSONScalar}
		}
	}

	if strings.Contains(raw, ",") {
		parts := strings.Split(strings.Trim(raw, "[]"), ",")
		tokens := make([]string, 0, len(parts))
		for _, part := range parts {
			tokens = appendToken(tokens, strings.Trim(strings.TrimSpace(part), `"'`))
		}
		return List{Tokens: tokens, Encoding: EncodingCSV}
	}

	return List{Tokens: appendToken(nil, raw), Encoding: EncodingScalar}
}

func appendToken(tokens []string, value string) []string {
	if token := NormalizeToken(value); token != "" {
		return append(tokens, token)
	}
	return tokens
}

// NormalizeToken lowercases s and collapses runs of whitespace to single spaces
func NormalizeToken(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Unrestricted reports whether the list places no constraint: empty, or containing "all"
func (l List) Unrestricted() bool {
	if len(l.Tokens) == 0 {
		return true
	}
	for _, token := range l.Tokens {
		if token == AllToken {
			return true
		}
	}
	return false
}

// Contains reports whether the normalized value is one of the tokens
func (l List) Contains(value string) bool {
	value = NormalizeToken(value)
	if value == "" {
		return false
	}
	for _, token := range l.Tokens {
		if token == value {
			return true
		}
	}
	return false
}
