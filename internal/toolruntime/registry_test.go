package toolruntime

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, name string, body []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadRegistryResolvesByName(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "read_file.json", validManifestJSON())

	r, err := LoadRegistry(dir, nil)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	m, ok := r.Resolve("read_file")
	if !ok || m.Name != "read_file" {
		t.Fatalf("Resolve() = %+v, %v", m, ok)
	}
}

func TestLoadRegistryRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.json", []byte(`{"name": "bad name"}`))

	if _, err := LoadRegistry(dir, nil); err == nil {
		t.Fatal("expected LoadRegistry to fail on an invalid manifest")
	}
}

func TestWatchPicksUpNewManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "read_file.json", validManifestJSON())

	r, err := LoadRegistry(dir, nil)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if err := r.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer r.Close()

	writeManifest(t, dir, "write_file.json", []byte(`{
		"name": "write_file",
		"version": "1.0.0",
		"description": "Writes a file",
		"runner": "builtin",
		"input_schema": {"type": "object"},
		"output_schema": {"type": "object"},
		"permissions": ["filesystem:write:workspace"],
		"timeout_ms": 5000,
		"supports": {"mock": false, "dry_run": true}
	}`))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Resolve("write_file"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected watcher to pick up the new manifest within the deadline")
}
