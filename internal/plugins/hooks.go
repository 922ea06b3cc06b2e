package plugins

import (
	"context"

	"reach/core/internal/journal"
	"reach/core/internal/logging"
)

// HookPoint names a point in the Kernel/Tool Runtime lifecycle a plugin
// can observe or modify (spec.md §1 "typed hooks"). The core dispatches
// synchronously and in registration order — there is no concrete
// example of an async hook transport in the corpus (see DESIGN.md's
// dropped nats.go dependency), and spec.md §6 describes hook dispatch
// as in-process.
type HookPoint string

const (
	HookPreStep        HookPoint = "pre_step"
	HookPostStep       HookPoint = "post_step"
	HookPrePlan        HookPoint = "pre_plan"
	HookPostPlan       HookPoint = "post_plan"
	HookPreToolCall    HookPoint = "pre_tool_call"
	HookPostToolCall   HookPoint = "post_tool_call"
	HookPermissionDecision HookPoint = "permission_decision"
	HookSessionTerminal HookPoint = "session_terminal"
)

// Hook receives a hook point's payload and may return a replacement
// payload (its "modify" half) and/or an error. Returning a nil payload
// leaves the input payload unchanged for the next hook in the chain.
type Hook func(ctx context.Context, payload map[string]any) (map[string]any, error)

// registration pairs a hook with the plugin that owns it, so a failing
// hook's journal event can name its source.
type registration struct {
	pluginName string
	point      HookPoint
	fn         Hook
}

// Dispatcher runs registered hooks in registration order. A hook that
// panics or returns an error is swallowed — never propagated to the
// caller — mirroring the Journal listener boundary's "always swallow"
// rule (spec.md §7, DESIGN.md Open Question #3): a misbehaving plugin
// must not take down a session.
type Dispatcher struct {
	j      *journal.Journal
	logger *logging.Logger
	hooks  map[HookPoint][]registration
}

// NewDispatcher constructs a Dispatcher. j may be nil in tests that
// don't care about hook auditing.
func NewDispatcher(j *journal.Journal, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		j:      j,
		logger: logger.WithComponent("plugins"),
		hooks:  make(map[HookPoint][]registration),
	}
}

// Register subscribes a plugin's hook to point. Returns an unsubscribe
// function.
func (d *Dispatcher) Register(pluginName string, point HookPoint, fn Hook) (unsubscribe func()) {
	d.hooks[point] = append(d.hooks[point], registration{pluginName: pluginName, point: point, fn: fn})
	idx := len(d.hooks[point]) - 1
	return func() {
		if idx < len(d.hooks[point]) {
			d.hooks[point][idx].fn = nil
		}
	}
}

// Dispatch runs every hook registered at point, in order, threading
// each hook's (possibly modified) payload into the next. The final
// payload is returned to the caller regardless of any individual hook's
// failure.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, point HookPoint, payload map[string]any) map[string]any {
	for _, reg := range d.hooks[point] {
		if reg.fn == nil {
			continue
		}
		next, err := d.invoke(reg, ctx, payload)
		if err != nil {
			d.journalError(sessionID, reg, err)
			continue
		}
		d.journalInvoked(sessionID, reg)
		if next != nil {
			payload = next
		}
	}
	return payload
}

func (d *Dispatcher) invoke(reg registration, ctx context.Context, payload map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("plugin hook panicked: " + reg.pluginName)
			out, err = nil, errPanicked
		}
	}()
	return reg.fn(ctx, payload)
}

var errPanicked = hookPanicError{}

type hookPanicError struct{}

func (hookPanicError) Error() string { return "plugin hook panicked" }

func (d *Dispatcher) journalInvoked(sessionID string, reg registration) {
	if d.j == nil {
		return
	}
	d.j.TryEmit(sessionID, journal.KindPluginHookInvoked, map[string]any{
		"plugin": reg.pluginName,
		"hook":   string(reg.point),
	})
}

func (d *Dispatcher) journalError(sessionID string, reg registration, err error) {
	if d.j == nil {
		return
	}
	d.j.TryEmit(sessionID, journal.KindPluginHookError, map[string]any{
		"plugin": reg.pluginName,
		"hook":   string(reg.point),
		"error":  err.Error(),
	})
}
