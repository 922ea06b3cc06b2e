package plugins

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"reach/core/internal/journal"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "j.log"), journal.Options{})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestDispatchRunsHooksInOrderAndThreadsPayload(t *testing.T) {
	d := NewDispatcher(openTestJournal(t), nil)

	var order []string
	d.Register("plugin-a", HookPreStep, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		order = append(order, "a")
		payload["seen_by_a"] = true
		return payload, nil
	})
	d.Register("plugin-b", HookPreStep, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		order = append(order, "b")
		if payload["seen_by_a"] != true {
			t.Error("plugin-b did not see plugin-a's modification")
		}
		return payload, nil
	})

	out := d.Dispatch(context.Background(), "sess-1", HookPreStep, map[string]any{})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	if out["seen_by_a"] != true {
		t.Fatal("final payload lost plugin-a's modification")
	}
}

func TestDispatchSwallowsHookError(t *testing.T) {
	d := NewDispatcher(openTestJournal(t), nil)
	d.Register("bad-plugin", HookPostStep, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	out := d.Dispatch(context.Background(), "sess-1", HookPostStep, map[string]any{"ok": true})
	if out["ok"] != true {
		t.Fatal("payload should survive a failing hook")
	}
}

func TestDispatchSwallowsHookPanic(t *testing.T) {
	d := NewDispatcher(openTestJournal(t), nil)
	d.Register("panicky-plugin", HookPostStep, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		panic("unexpected")
	})

	out := d.Dispatch(context.Background(), "sess-1", HookPostStep, map[string]any{"ok": true})
	if out["ok"] != true {
		t.Fatal("payload should survive a panicking hook")
	}
}

func TestUnsubscribeStopsFutureDispatch(t *testing.T) {
	d := NewDispatcher(openTestJournal(t), nil)
	calls := 0
	unsub := d.Register("plugin-a", HookPreStep, func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		calls++
		return nil, nil
	})
	d.Dispatch(context.Background(), "sess-1", HookPreStep, map[string]any{})
	unsub()
	d.Dispatch(context.Background(), "sess-1", HookPreStep, map[string]any{})
	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}
