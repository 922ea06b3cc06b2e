package journal

import "testing"

func TestCheckSchemaCompatAcceptsCurrentMajor(t *testing.T) {
	if err := checkSchemaCompat(map[string]any{"schema_version": "1.2.3"}); err != nil {
		t.Fatalf("expected same-major version to be compatible: %v", err)
	}
}

func TestCheckSchemaCompatRejectsDifferentMajor(t *testing.T) {
	if err := checkSchemaCompat(map[string]any{"schema_version": "2.0.0"}); err == nil {
		t.Fatal("expected a differing major version to be rejected")
	}
}

func TestCheckSchemaCompatAcceptsMissingField(t *testing.T) {
	if err := checkSchemaCompat(map[string]any{}); err != nil {
		t.Fatalf("expected missing schema_version to be accepted for forward compatibility: %v", err)
	}
}

func TestCheckSchemaCompatRejectsMalformedVersion(t *testing.T) {
	if err := checkSchemaCompat(map[string]any{"schema_version": "not-a-version"}); err == nil {
		t.Fatal("expected malformed schema_version to be rejected")
	}
}
