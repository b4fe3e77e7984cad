package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{
		"title":      "Acme Widget",
		"attributes": map[string]any{"brand": "Acme", "color": "red"},
	}
	b := map[string]any{
		"attributes": map[string]any{"color": "red", "brand": "Acme"},
		"title":      "Acme Widget",
	}

	assert.Equal(t, Generate(a), Generate(b))
	assert.Len(t, Generate(a), 64)
}

func TestGenerate_ContentChange(t *testing.T) {
	a := map[string]any{"title": "Acme Widget"}
	b := map[string]any{"title": "Acme Widget 2"}

	assert.NotEqual(t, Generate(a), Generate(b))
}

func TestGenerateFromJSON(t *testing.T) {
	fp, err := GenerateFromJSON(json.RawMessage(`{"b":1,"a":[1,"x"]}`))
	require.NoError(t, err)
	assert.Equal(t, Generate(map[string]any{"a": []any{float64(1), "x"}, "b": float64(1)}), fp)

	_, err = GenerateFromJSON(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestHasChanged(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		want     bool
	}{
		{"same", "abc", "abc", false},
		{"different", "abc", "def", true},
		{"no previous", "", "def", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasChanged(tt.old, tt.new))
		})
	}
}
