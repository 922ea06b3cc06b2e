package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"reach/core/internal/journal"
)

func seedJournal(t *testing.T, path string) {
	t.Helper()
	j, err := journal.Open(path, journal.Options{})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	if _, err := j.Emit("s1", journal.KindSessionCreated, map[string]any{"task": "demo"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, err := j.Emit("s1", journal.KindSessionStarted, map[string]any{}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, err := j.Emit("s2", journal.KindSessionCreated, map[string]any{"task": "other"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestRunVerifyValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	seedJournal(t, path)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"verify", "-journal", path}, &out, &errOut)
	if code != 0 {
		t.Fatalf("verify failed: code=%d err=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "valid") {
		t.Errorf("expected valid in output, got %q", out.String())
	}
}

func TestRunVerifyMissingFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"verify"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestRunTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	seedJournal(t, path)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"tail", "-journal", path, "-session", "s1"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("tail failed: code=%d err=%s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 events for session s1, got %d: %q", len(lines), out.String())
	}
}

func TestRunCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	seedJournal(t, path)

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"compact", "-journal", path, "-session", "s1"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("compact failed: code=%d err=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "3 -> 2") {
		t.Errorf("expected 3 -> 2 events in output, got %q", out.String())
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"bogus"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
