package toolruntime

import (
	"context"
	"time"

	"reach/core/internal/journal"
	"reach/core/internal/logging"
	"reach/core/internal/permission"
	"reach/core/internal/plugins"
	"reach/core/internal/reacherr"
)

// Mode selects a tool call's execution path (spec.md §4.3 step 5).
type Mode string

const (
	ModeMock   Mode = "mock"
	ModeDryRun Mode = "dry_run"
	ModeLive   Mode = "live"
)

// Handler is the tool handler interface consumed (not implemented) by
// the core (spec.md §6 "Tool handler interface"). Handlers must be
// idempotent for retries only when the step's failure_policy requests
// it — Tool Runtime itself never retries internally.
type Handler func(ctx context.Context, input map[string]any, mode Mode, policy Policy) (map[string]any, error)

// Call is a single execute() request.
type Call struct {
	Tool      string
	Input     map[string]any
	Mode      Mode
	Policy    Policy
	SessionID string
	StepID    string
	// TimeoutOverrideMS, if non-zero, clamps (never extends) the
	// manifest's timeout_ms for this call.
	TimeoutOverrideMS int
}

// Result is execute()'s success outcome.
type Result struct {
	Output map[string]any
}

// Runtime wires together the manifest registry, schema validator
// cache, per-tool breakers, permission engine, and journal to execute
// a single tool call end-to-end (spec.md §4.3).
type Runtime struct {
	registry   *Registry
	validators *validatorCache
	breakers   *BreakerGroup
	perm       *permission.Engine
	j          *journal.Journal
	logger     *logging.Logger
	handlers   map[string]Handler
	hooks      *plugins.Dispatcher
}

// SetHooks installs the plugin dispatcher Execute fires pre_tool_call
// and post_tool_call through. Passing nil disables hook dispatch for
// this Runtime.
func (r *Runtime) SetHooks(d *plugins.Dispatcher) { r.hooks = d }

// New constructs a Runtime. registry and perm must not be nil.
func New(registry *Registry, perm *permission.Engine, j *journal.Journal, logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runtime{
		registry:   registry,
		validators: newValidatorCache(defaultValidatorCacheSize),
		breakers:   newBreakerGroup(),
		perm:       perm,
		j:          j,
		logger:     logger.WithComponent("toolruntime"),
		handlers:   make(map[string]Handler),
	}
}

// RegisterHandler wires a live-mode handler for a tool name.
func (r *Runtime) RegisterHandler(tool string, h Handler) {
	r.handlers[tool] = h
}

// Execute runs a single tool call through every stage of spec.md
// §4.3's execute() operation.
func (r *Runtime) Execute(ctx context.Context, call Call) (Result, error) {
	manifest, ok := r.registry.Resolve(call.Tool)
	if !ok {
		return Result{}, reacherr.New(reacherr.CodeToolNotFound, "tool not registered: "+call.Tool)
	}

	if errs := r.validators.validateAgainst(manifest.InputSchema, call.Input); len(errs) > 0 {
		return Result{}, reacherr.New(reacherr.CodeInputValidationFailed, "input failed schema validation").
			WithDetails(map[string]any{"errors": errs})
	}

	breaker := r.breakers.get(call.Tool, manifest.BreakerConfig)
	if !breaker.Allow() {
		return Result{}, reacherr.New(reacherr.CodeCircuitOpen, "circuit open for tool: "+call.Tool)
	}

	if r.perm != nil {
		result, err := r.perm.Check(ctx, permission.Request{
			SessionID:      call.SessionID,
			StepID:         call.StepID,
			Tool:           call.Tool,
			RequiredScopes: manifest.Permissions,
		})
		if err != nil {
			return Result{}, err
		}
		if !result.Allowed {
			return Result{}, permission.DeniedError(result.Denials)
		}
	}

	r.journalStarted(call)
	r.fireHook(ctx, call, plugins.HookPreToolCall, map[string]any{"tool": call.Tool, "mode": string(call.Mode)})

	output, err := r.dispatch(ctx, call, manifest)
	if err != nil {
		if !isPolicyCode(reacherr.CodeOf(err)) {
			breaker.RecordFailure()
		}
		r.journalFailed(call, err)
		r.fireHook(ctx, call, plugins.HookPostToolCall, map[string]any{"tool": call.Tool, "success": false, "code": string(reacherr.CodeOf(err))})
		return Result{}, err
	}

	if errs := r.validators.validateAgainst(manifest.OutputSchema, output); len(errs) > 0 {
		outErr := reacherr.New(reacherr.CodeOutputValidationFailed, "output failed schema validation").
			WithDetails(map[string]any{"errors": errs})
		breaker.RecordFailure()
		r.journalFailed(call, outErr)
		r.fireHook(ctx, call, plugins.HookPostToolCall, map[string]any{"tool": call.Tool, "success": false, "code": string(reacherr.CodeOutputValidationFailed)})
		return Result{}, outErr
	}

	breaker.RecordSuccess()
	r.journalSucceeded(call)
	r.fireHook(ctx, call, plugins.HookPostToolCall, map[string]any{"tool": call.Tool, "success": true})
	return Result{Output: output}, nil
}

func (r *Runtime) fireHook(ctx context.Context, call Call, point plugins.HookPoint, payload map[string]any) {
	if r.hooks == nil {
		return
	}
	r.hooks.Dispatch(ctx, call.SessionID, point, payload)
}

func isPolicyCode(c reacherr.Code) bool {
	return c.Category() == "policy" || c.Category() == "authorization"
}

func (r *Runtime) dispatch(ctx context.Context, call Call, m Manifest) (map[string]any, error) {
	switch call.Mode {
	case ModeMock:
		if !m.Supports.Mock {
			return nil, reacherr.New(reacherr.CodeExecutionError, "tool does not support mock mode: "+call.Tool)
		}
		if len(m.MockResponses) > 0 {
			return m.MockResponses[0], nil
		}
		return map[string]any{}, nil

	case ModeDryRun:
		if !m.Supports.DryRun {
			return nil, reacherr.New(reacherr.CodeExecutionError, "tool does not support dry_run mode: "+call.Tool)
		}
		// A handler receives mode=dry_run and is expected to run its own
		// policy checks (CheckPathAccess/CheckCommandAccess/
		// CheckEndpointAccess against call.Policy) without performing the
		// real I/O, returning DRY_RUN_POLICY_VIOLATION if a check fails
		// (spec.md §4.3 step 5). Tools with no registered handler fall
		// back to a generic would-do description.
		if handler, ok := r.handlers[call.Tool]; ok {
			return r.runWithTimeout(ctx, handler, call, m)
		}
		return map[string]any{
			"would_execute": call.Tool,
			"input":         call.Input,
		}, nil

	case ModeLive:
		handler, ok := r.handlers[call.Tool]
		if !ok {
			return nil, reacherr.New(reacherr.CodeExecutionError, "no handler registered for tool: "+call.Tool)
		}
		return r.runWithTimeout(ctx, handler, call, m)

	default:
		return nil, reacherr.New(reacherr.CodeExecutionError, "unknown mode: "+string(call.Mode))
	}
}

func (r *Runtime) runWithTimeout(ctx context.Context, h Handler, call Call, m Manifest) (map[string]any, error) {
	timeoutMS := m.TimeoutMS
	if call.TimeoutOverrideMS > 0 && call.TimeoutOverrideMS < timeoutMS {
		timeoutMS = call.TimeoutOverrideMS
	}

	cctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	type outcome struct {
		output map[string]any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		out, err := h(cctx, call.Input, call.Mode, call.Policy)
		done <- outcome{out, err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-cctx.Done():
		return nil, reacherr.New(reacherr.CodeTimeout, "tool call timed out after "+(time.Duration(timeoutMS)*time.Millisecond).String())
	}
}

func (r *Runtime) journalStarted(call Call) {
	if r.j == nil {
		return
	}
	r.j.TryEmit(call.SessionID, journal.KindToolStarted, map[string]any{
		"step_id": call.StepID,
		"tool":    call.Tool,
		"mode":    string(call.Mode),
	})
}

func (r *Runtime) journalSucceeded(call Call) {
	if r.j == nil {
		return
	}
	r.j.TryEmit(call.SessionID, journal.KindToolSucceeded, map[string]any{
		"step_id": call.StepID,
		"tool":    call.Tool,
	})
}

func (r *Runtime) journalFailed(call Call, err error) {
	if r.j == nil {
		return
	}
	r.j.TryEmit(call.SessionID, journal.KindToolFailed, map[string]any{
		"step_id": call.StepID,
		"tool":    call.Tool,
		"code":    string(reacherr.CodeOf(err)),
	})
}
