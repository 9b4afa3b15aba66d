package protocol

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// CanonicalJSON renders a value as compact JSON with object keys sorted.
// encoding/json already sorts map keys, so marshaling a decoded value is
// canonical as long as the value round-tripped through JSON types.
func CanonicalJSON(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// HashParams returns the SHA-1 hex digest of the canonical JSON encoding of
// params. Two param objects that differ only in key order or whitespace hash
// identically.
func HashParams(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := CanonicalJSON(params)
	if err != nil {
		return ""
	}
	sum := sha1.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
