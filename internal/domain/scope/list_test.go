package scope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScopeList(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantTokens   []string
		wantEncoding Encoding
	}{
		{"empty", "", nil, EncodingEmpty},
		{"whitespace", "   ", nil, EncodingEmpty},
		{"json null", "null", nil, EncodingEmpty},
		{"json array", `["Manila", " Cebu  City "]`, []string{"manila", "cebu city"}, EncodingJSONArray},
		{"json array with numbers", `["North", 7]`, []string{"north", "7"}, EncodingJSONArray},
		{"empty json array", `[]`, []string{}, EncodingJSONArray},
		{"json scalar", `"Davao"`, []string{"davao"}, EncodingJSONScalar},
		{"bare scalar", "Remote  Office", []string{"remote office"}, EncodingScalar},
		{"csv", "Manila, Cebu,,Davao ", []string{"manila", "cebu", "davao"}, EncodingCSV},
		{"broken json falls back to csv", `["Manila", "Cebu"`, []string{"manila", "cebu"}, EncodingCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScopeList(tt.raw)
			assert.Equal(t, tt.wantEncoding, got.Encoding)
			if len(tt.wantTokens) == 0 {
				assert.Empty(t, got.Tokens)
				return
			}
			assert.Equal(t, tt.wantTokens, got.Tokens)
		})
	}
}

func TestList_Unrestricted(t *testing.T) {
	assert.True(t, ParseScopeList("").Unrestricted())
	assert.True(t, ParseScopeList(`[]`).Unrestricted())
	assert.True(t, ParseScopeList(`["Manila", "ALL"]`).Unrestricted())
	assert.True(t, ParseScopeList("All").Unrestricted())
	assert.False(t, ParseScopeList("Manila").Unrestricted())
	assert.False(t, ParseScopeList("allen").Unrestricted())
}

func TestList_Contains(t *testing.T) {
	l := ParseScopeList(`["Cebu City", "Manila"]`)

	assert.True(t, l.Contains("cebu   city"))
	assert.True(t, l.Contains(" MANILA "))
	assert.False(t, l.Contains("Davao"))
	assert.False(t, l.Contains(""))
}

func TestParseScopeList_Idempotent(t *testing.T) {
	raw := `Manila, "Cebu City", all`
	assert.Equal(t, ParseScopeList(raw), ParseScopeList(raw))
}

func TestRawList_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Location RawList `json:"location"`
		Tenure   RawList `json:"tenure"`
		Geo      RawList `json:"geo"`
	}
	err := json.Unmarshal([]byte(`{"location":["Manila","Cebu"],"tenure":"0-6months, 5+ years","geo":null}`), &payload)
	assert.NoError(t, err)

	assert.Equal(t, []string{"manila", "cebu"}, ParseScopeList(payload.Location.String()).Tokens)
	assert.Equal(t, EncodingCSV, ParseScopeList(payload.Tenure.String()).Encoding)
	assert.True(t, ParseScopeList(payload.Geo.String()).Unrestricted())

	assert.Error(t, json.Unmarshal([]byte(`{"location":42}`), &payload))
}
