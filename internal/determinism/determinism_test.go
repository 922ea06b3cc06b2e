package determinism

import (
	"testing"
)

func TestHashDeterminism(t *testing.T) {
	// Same input should produce same hash
	input := map[string]any{"a": 1, "b": "test", "c": []any{1, 2, 3}}
	hash1 := Hash(input)
	hash2 := Hash(input)

	if hash1 != hash2 {
		t.Errorf("Hash not deterministic: %s vs %s", hash1, hash2)
	}
}

func TestHashMapKeyOrderIndependence(t *testing.T) {
	// Different key order should produce same hash after canonicalization
	input1 := map[string]any{"z": 1, "a": 2, "m": 3}
	input2 := map[string]any{"a": 2, "m": 3, "z": 1}

	hash1 := Hash(input1)
	hash2 := Hash(input2)

	if hash1 != hash2 {
		t.Errorf("Hash should be independent of map key order: %s vs %s", hash1, hash2)
	}
}

func TestHashNestedStructures(t *testing.T) {
	input := map[string]any{
		"level1": map[string]any{
			"level2": map[string]any{
				"value": "deep",
			},
		},
		"array": []any{1, 2, map[string]any{"b": 2, "a": 1}},
	}

	hash1 := Hash(input)
	hash2 := Hash(input)

	if hash1 != hash2 {
		t.Errorf("Nested structure hash not deterministic: %s vs %s", hash1, hash2)
	}
}

func TestCanonicalJSONSorting(t *testing.T) {
	input := map[string]any{"z": 1, "a": 2, "m": 3}
	canon := CanonicalJSON(input)

	// Canonical JSON should have sorted keys: a, m, z
	expected := `{"a":2,"m":3,"z":1}`
	if canon != expected {
		t.Errorf("Canonical JSON not sorted: got %s, want %s", canon, expected)
	}
}

// BenchmarkHash measures the performance of the Hash function
func BenchmarkHash(b *testing.B) {
	input := map[string]any{
		"event_log": []map[string]any{
			{"step": "start", "data": "initial"},
			{"step": "process", "data": "working"},
			{"step": "end", "data": "final"},
		},
		"run_id": "benchmark-run",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Hash(input)
	}
}
