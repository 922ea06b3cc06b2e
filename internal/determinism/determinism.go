// Package determinism provides canonical serialization and hashing used
// to link the journal's hash chain: hash(serialize(e_{i-1})) must be
// reproducible across Go versions and platforms, which rules out relying
// on encoding/json's incidental map key order.
package determinism

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Hash computes the SHA-256 hash of the canonical JSON representation of v.
// This is the single source of truth for deterministic hashing in the
// journal's chain: every prev_hash is Hash() of the previous event.
func Hash(v any) string {
	sum := sha256.Sum256([]byte(CanonicalJSON(v)))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON returns a deterministic JSON representation of v.
// Map keys are sorted alphabetically to ensure consistent ordering.
// This is safe because the canonicalization creates a new structure
// and does not modify the input.
func CanonicalJSON(v any) string {
	canon := canonicalize(v)
	b, _ := json.Marshal(canon)
	return string(b)
}

// canonicalize recursively rebuilds v so every map[string]any has its
// keys in sorted order before json.Marshal ever sees it. Safe: does not
// mutate the input.
func canonicalize(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		res := make(map[string]any, len(keys))
		for _, k := range keys {
			res[k] = canonicalize(vv[k])
		}
		return res
	case []any:
		res := make([]any, len(vv))
		for i := range vv {
			res[i] = canonicalize(vv[i])
		}
		return res
	default:
		return vv
	}
}
