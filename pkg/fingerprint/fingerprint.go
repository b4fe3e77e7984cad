// Package fingerprint hashes product content so re-deliveries of the same
// record version can be told apart from edits.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate returns the SHA256 of the canonical JSON of data.
// Map keys are sorted at every level so the result does not depend on map order.
func Generate(data map[string]any) string {
	var sb strings.Builder
	writeCanonical(&sb, data)
	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON fingerprints a raw JSON object.
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

func writeCanonical(sb *strings.Builder, data any) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			sb.Write(keyJSON)
			sb.WriteByte(':')
			writeCanonical(sb, v[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		b, _ := json.Marshal(v)
		sb.Write(b)
	}
}

// HasChanged compares two fingerprints. An empty old fingerprint never counts as drift.
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != "" && oldFingerprint != newFingerprint
}
