package main

import (
	"os"
	"path/filepath"
	"testing"

	"reach/core/internal/journal"
)

func TestRunCompletesStaticPlannerSession(t *testing.T) {
	dir := t.TempDir()
	manifestDir := filepath.Join(dir, "manifests")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{
		"name": "noop",
		"version": "1.0.0",
		"description": "no-op",
		"runner": "internal",
		"input_schema": {"type": "object"},
		"output_schema": {"type": "object"},
		"permissions": [],
		"timeout_ms": 5000,
		"supports": {"mock": true, "dry_run": true}
	}`
	if err := os.WriteFile(filepath.Join(manifestDir, "noop.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	journalPath := filepath.Join(dir, "journal.log")
	t.Setenv("REACH_JOURNAL_PATH", journalPath)
	t.Setenv("REACH_TOOLRUNTIME_MANIFEST_DIR", manifestDir)
	t.Setenv("REACH_JOURNAL_FSYNC", "false")

	if err := run("say hello", true, ""); err != nil {
		t.Fatalf("run: %v", err)
	}

	j, err := journal.Open(journalPath, journal.Options{})
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j.Close()

	events := j.ReadAll()
	var sawCompleted bool
	for _, e := range events {
		if e.Type == journal.KindSessionCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Errorf("expected a session.completed event, got kinds: %v", kindsOf(events))
	}
}

func kindsOf(events []journal.Event) []journal.Kind {
	out := make([]journal.Kind, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
