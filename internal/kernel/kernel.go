// Package kernel drives a session from task to terminal state by
// alternating planner invocation and step execution under a global
// budget (spec.md §4.4). It is the one component that depends on all
// three others: Journal, Permission Engine, Tool Runtime, plus the
// external Planner and Tool Registry. Grounded on the teacher's
// internal/autonomous.Loop (preflight/tick/checkpoint shape), replacing
// its mobile-device signal/battery/network pause model and ad hoc
// StatusReason taxonomy with spec.md §4.4's exact state machine and
// event names.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reach/core/internal/contextkeys"
	"reach/core/internal/delegation"
	"reach/core/internal/journal"
	"reach/core/internal/logging"
	"reach/core/internal/permission"
	"reach/core/internal/plugins"
	"reach/core/internal/reacherr"
	"reach/core/internal/toolruntime"
)

// Registry is the subset of toolruntime.Registry the Kernel needs to
// build the toolSchemas list handed to the Planner on every call.
type Registry interface {
	List() []toolruntime.Manifest
	Resolve(name string) (toolruntime.Manifest, bool)
}

// Kernel wires the Journal, Permission Engine, Tool Runtime, a Planner,
// and a tool Registry into the agentic execution loop.
type Kernel struct {
	j        *journal.Journal
	perm     *permission.Engine
	runtime  *toolruntime.Runtime
	registry Registry
	planner  Planner
	logger   *logging.Logger
	hooks    *plugins.Dispatcher

	// delegationSecret signs HMAC delegation tokens minted by
	// runSubagent. A nil secret means subagent delegation is
	// unavailable — RunSubagent returns an error rather than minting an
	// unsigned token.
	delegationSecret []byte
}

// WithHooks installs the plugin hook dispatcher the loop fires pre_plan,
// post_plan, pre_step, post_step, and session_terminal through. A
// Kernel with no dispatcher installed runs exactly as if every hook
// point had zero registrations.
func WithHooks(d *plugins.Dispatcher) Option {
	return func(k *Kernel) { k.hooks = d }
}

// Option configures a Kernel at construction.
type Option func(*Kernel)

// WithDelegationSecret installs the HMAC secret RunSubagent uses to sign
// child delegation tokens (spec.md §4.2).
func WithDelegationSecret(secret []byte) Option {
	return func(k *Kernel) { k.delegationSecret = secret }
}

// New constructs a Kernel. j, perm, runtime, registry, and planner must
// not be nil.
func New(j *journal.Journal, perm *permission.Engine, runtime *toolruntime.Runtime, registry Registry, planner Planner, logger *logging.Logger, opts ...Option) *Kernel {
	if logger == nil {
		logger = logging.NewNop()
	}
	k := &Kernel{
		j:        j,
		perm:     perm,
		runtime:  runtime,
		registry: registry,
		planner:  planner,
		logger:   logger.WithComponent("kernel"),
		hooks:    plugins.NewDispatcher(j, logger),
	}
	for _, opt := range opts {
		opt(k)
	}
	perm.SetHooks(k.hooks)
	runtime.SetHooks(k.hooks)
	return k
}

// RunRequest starts a new root session.
type RunRequest struct {
	SessionID string // generated if empty
	Task      string
	Limits    Limits
	Agentic   bool
}

// Run drives sessionID from StatusCreated to a terminal Status,
// implementing spec.md §4.4's main loop contract exactly. It returns
// once the session reaches completed, failed, or aborted — never
// partway through.
func (k *Kernel) Run(ctx context.Context, req RunRequest) (*Session, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	session := NewSession(req.SessionID, req.Task, req.Limits)
	ctx = contextkeys.ContextWithSessionID(ctx, session.ID)
	if contextkeys.CorrelationIDFromContext(ctx) == "" {
		ctx = contextkeys.ContextWithCorrelationID(ctx, session.ID)
	}

	k.j.TryEmit(session.ID, journal.KindSessionCreated, map[string]any{"task": session.Task})
	session.setStatus(StatusRunning)
	k.j.TryEmit(session.ID, journal.KindSessionStarted, map[string]any{})
	k.logger.WithFields(map[string]string{
		"session_id":     contextkeys.SessionIDFromContext(ctx),
		"correlation_id": contextkeys.CorrelationIDFromContext(ctx),
	}).Info("session started")

	k.loop(ctx, session, req.Agentic)
	return session, nil
}

func (k *Kernel) loop(ctx context.Context, session *Session, agentic bool) {
	toolSchemas, known := k.toolSchemas()

	var iteration int64
	for {
		if session.abortRequested() {
			k.terminate(session, StatusAborted, "", "external abort requested")
			return
		}
		if ctx.Err() != nil {
			k.terminate(session, StatusAborted, "", "context canceled")
			return
		}
		if dim, breached := session.tracker.Check(); breached {
			k.emitLimitExceeded(session, dim)
			k.terminate(session, StatusFailed, string(reacherr.CodeLimitExceeded), "limit exceeded: "+string(dim))
			return
		}

		snapshot := StateSnapshot{
			SessionID:   session.ID,
			Task:        session.Task,
			Iteration:   iteration,
			Findings:    session.findingsSnapshot(),
			TokensUsed:  session.tracker.Snapshot().TokensSpent,
			CostUsedUSD: session.tracker.Snapshot().CostSpentUSD,
		}
		constraints := k.constraintsFor(session)

		k.dispatch(ctx, session.ID, plugins.HookPrePlan, map[string]any{"iteration": iteration})
		k.j.TryEmit(session.ID, journal.KindPlannerRequested, map[string]any{"iteration": iteration})
		planResult, err := k.invokePlanner(ctx, session, toolSchemas, snapshot, constraints)
		if err != nil {
			k.j.TryEmit(session.ID, journal.KindPlannerError, map[string]any{"error": err.Error()})
			k.terminate(session, StatusFailed, string(reacherr.CodePlannerError), err.Error())
			return
		}
		session.tracker.RecordIteration()

		k.j.TryEmit(session.ID, journal.KindPlannerPlanReceived, map[string]any{
			"plan_id":    planResult.Plan.ID,
			"step_count": len(planResult.Plan.Steps),
		})
		k.dispatch(ctx, session.ID, plugins.HookPostPlan, map[string]any{
			"plan_id":    planResult.Plan.ID,
			"step_count": len(planResult.Plan.Steps),
		})

		if problems := sanityCheckPlan(planResult.Plan, known); len(problems) > 0 {
			reason := fmt.Sprintf("plan failed sanity check: %v", problems)
			k.j.TryEmit(session.ID, journal.KindPlannerPlanRejected, map[string]any{"reason": reason})
			k.terminate(session, StatusFailed, string(reacherr.CodeInvalidEvent), reason)
			return
		}

		if len(planResult.Plan.Steps) == 0 {
			if iteration == 0 {
				reason := "first iteration empty: planner returned zero steps"
				k.j.TryEmit(session.ID, journal.KindPlannerPlanRejected, map[string]any{"reason": reason})
				k.terminate(session, StatusFailed, string(reacherr.CodePlannerEmptyInitial), reason)
				return
			}
			k.terminate(session, StatusCompleted, "", "")
			return
		}

		if terminal, status, code, reason := k.runSteps(ctx, session, planResult.Plan.Steps); terminal {
			k.terminate(session, status, code, reason)
			return
		}

		if !agentic {
			k.terminate(session, StatusCompleted, "", "")
			return
		}
		iteration++
	}
}

// runSteps executes every step of one plan in order, applying each
// step's failure_policy on failure (spec.md §4.4). It returns
// terminal=true when the session must end immediately (abort policy,
// limit breach, or external abort) rather than continuing to the next
// planner call.
func (k *Kernel) runSteps(ctx context.Context, session *Session, steps []Step) (terminal bool, status Status, code, reason string) {
	for _, step := range steps {
		if session.abortRequested() {
			return true, StatusAborted, "", "external abort requested mid-step"
		}
		if dim, breached := session.tracker.Check(); breached {
			k.emitLimitExceeded(session, dim)
			return true, StatusFailed, string(reacherr.CodeLimitExceeded), "limit exceeded: " + string(dim)
		}

		attempts := step.MaxRetries + 1
		var lastErr error
		for attempt := 0; attempt < attempts; attempt++ {
			lastErr = k.runStep(ctx, session, step)
			if lastErr == nil {
				break
			}
			if reacherr.CodeOf(lastErr).IsRetryable() && step.FailurePolicy == FailurePolicyRetry && attempt < attempts-1 {
				continue
			}
			break
		}
		session.tracker.RecordStep()

		if lastErr == nil {
			continue
		}

		if reacherr.CodeOf(lastErr).SessionFatal() {
			return true, StatusFailed, string(reacherr.CodeOf(lastErr)), lastErr.Error()
		}

		switch step.FailurePolicy {
		case FailurePolicyAbort:
			return true, StatusFailed, string(reacherr.CodeOf(lastErr)), lastErr.Error()
		case FailurePolicyContinue, FailurePolicyRetry:
			// continue: the failed step's finding was already recorded by
			// runStep; retry already exhausted its attempts above, so a
			// surviving error here falls through the same as continue.
		}
	}
	return false, "", "", ""
}

func (k *Kernel) runStep(ctx context.Context, session *Session, step Step) error {
	ctx = contextkeys.ContextWithRequestID(ctx, step.ID)
	k.dispatch(ctx, session.ID, plugins.HookPreStep, map[string]any{"step_id": step.ID, "tool": step.Tool.Name})
	k.j.TryEmit(session.ID, journal.KindStepStarted, map[string]any{"step_id": step.ID, "tool": step.Tool.Name})

	result, err := k.runtime.Execute(ctx, toolruntime.Call{
		Tool:              step.Tool.Name,
		Input:             step.Input,
		Mode:              toolruntime.ModeLive,
		SessionID:         session.ID,
		StepID:            step.ID,
		TimeoutOverrideMS: step.TimeoutMS,
	})
	if err != nil {
		code := reacherr.CodeOf(err)
		k.j.TryEmit(session.ID, journal.KindStepFailed, map[string]any{
			"step_id": step.ID,
			"code":    string(code),
		})
		session.recordFinding(Finding{StepID: step.ID, Tool: step.Tool.Name, Success: false, Summary: err.Error(), Code: string(code)})
		k.dispatch(ctx, session.ID, plugins.HookPostStep, map[string]any{"step_id": step.ID, "success": false, "code": string(code)})
		return err
	}

	k.j.TryEmit(session.ID, journal.KindStepSucceeded, map[string]any{"step_id": step.ID})
	session.recordFinding(Finding{StepID: step.ID, Tool: step.Tool.Name, Success: true, Summary: summarizeOutput(result.Output)})
	k.dispatch(ctx, session.ID, plugins.HookPostStep, map[string]any{"step_id": step.ID, "success": true})
	return nil
}

// dispatch fires a hook point through the installed Dispatcher. A
// Kernel built via New always has one; only a zero-value Kernel (never
// produced outside tests that construct it directly) could have a nil
// hooks field.
func (k *Kernel) dispatch(ctx context.Context, sessionID string, point plugins.HookPoint, payload map[string]any) {
	if k.hooks == nil {
		return
	}
	k.hooks.Dispatch(ctx, sessionID, point, payload)
}

func summarizeOutput(output map[string]any) string {
	if output == nil {
		return ""
	}
	return fmt.Sprintf("%d output field(s)", len(output))
}

func (k *Kernel) invokePlanner(ctx context.Context, session *Session, toolSchemas []ToolSchema, snapshot StateSnapshot, constraints Constraints) (result PlanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = reacherr.New(reacherr.CodePlannerError, fmt.Sprintf("planner panicked: %v", r))
		}
	}()
	result, err = k.planner.GeneratePlan(ctx, session.Task, toolSchemas, snapshot, constraints)
	if err != nil {
		return PlanResult{}, reacherr.Wrap(reacherr.CodePlannerError, "planner returned an error", err)
	}
	session.tracker.RecordTokens(result.Usage.TotalTokens)
	return result, nil
}

func (k *Kernel) constraintsFor(session *Session) Constraints {
	snap := session.tracker.Snapshot()
	c := Constraints{}
	if session.limits.MaxTokens > 0 {
		c.RemainingTokens = session.limits.MaxTokens - snap.TokensSpent
	}
	if session.limits.MaxCostUSD > 0 {
		c.RemainingCostUSD = session.limits.MaxCostUSD - snap.CostSpentUSD
	}
	if session.limits.MaxSteps > 0 {
		c.RemainingSteps = session.limits.MaxSteps - snap.Steps
	}
	return c
}

func (k *Kernel) toolSchemas() ([]ToolSchema, map[string]ToolSchema) {
	manifests := k.registry.List()
	schemas := make([]ToolSchema, 0, len(manifests))
	known := make(map[string]ToolSchema, len(manifests))
	for _, m := range manifests {
		s := ToolSchema{Name: m.Name, Description: m.Description, InputSchema: m.InputSchema, OutputSchema: m.OutputSchema}
		schemas = append(schemas, s)
		known[m.Name] = s
	}
	return schemas, known
}

func (k *Kernel) emitLimitExceeded(session *Session, dim Dimension) {
	k.j.TryEmit(session.ID, journal.KindLimitExceeded, map[string]any{"dimension": string(dim)})
}

func (k *Kernel) terminate(session *Session, status Status, code, reason string) {
	session.setStatus(status)
	if code != "" || reason != "" {
		session.setFailure(code, reason)
	}
	k.dispatch(context.Background(), session.ID, plugins.HookSessionTerminal, map[string]any{"status": string(status), "code": code})
	switch status {
	case StatusCompleted:
		k.j.TryEmit(session.ID, journal.KindSessionCompleted, map[string]any{})
	case StatusFailed:
		k.j.TryEmit(session.ID, journal.KindSessionFailed, map[string]any{"code": code, "reason": reason})
	case StatusAborted:
		k.j.TryEmit(session.ID, journal.KindSessionAborted, map[string]any{"reason": reason})
		// Any permission approvals left pending on an aborted session
		// resolve to deny (spec.md §5) — clearing session-scoped grants
		// is the cheapest correct approximation without a separate
		// pending-approval registry, since a freshly denied scope can
		// only be re-granted by a new explicit Check call.
		k.perm.ClearSession(session.ID)
	}
}

// RunSubagentRequest describes a child session to spin up under a
// reduced budget and a derived delegation token (spec.md §4.4
// "Subagent delegation").
type RunSubagentRequest struct {
	Task          string
	Limits        Limits
	ToolAllowlist []string
	TokenTTL      time.Duration
	Agentic       bool
}

// RunSubagent executes a child session to completion and folds its
// outcome into a findings summary. Failures in the child never
// propagate as Go errors to the parent — only a setup error (no
// delegation secret installed, or failing to sign the token, build its
// enforcer or pre-grant its scopes) does, since at that point no child
// session exists yet to report an Outcome for. The parent session id is
// not validated: an unknown parent simply has no grants to delegate.
func (k *Kernel) RunSubagent(ctx context.Context, parentSessionID string, req RunSubagentRequest) (Outcome, error) {
	if len(k.delegationSecret) == 0 {
		return Outcome{}, reacherr.New(reacherr.CodeInternal, "kernel: subagent delegation requires a delegation secret")
	}
	if req.TokenTTL <= 0 {
		req.TokenTTL = 15 * time.Minute
	}

	childID := uuid.NewString()
	parentGrants := k.perm.ListGrants(parentSessionID)

	token := delegation.DeriveChildToken(parentSessionID, childID, parentGrants, req.ToolAllowlist, req.TokenTTL)
	signed, err := delegation.SignHMAC(token, k.delegationSecret)
	if err != nil {
		return Outcome{}, reacherr.Wrap(reacherr.CodeInternal, "failed to sign delegation token", err)
	}
	enforcer, err := delegation.NewEnforcer(signed)
	if err != nil {
		return Outcome{}, reacherr.Wrap(reacherr.CodeDelegationOutOfBounds, "failed to build enforcer from delegation token", err)
	}

	k.j.TryEmit(parentSessionID, journal.KindDelegationIssued, map[string]any{
		"child_session_id": childID,
		"allowed_scopes":   signed.AllowedScopes,
	})

	k.perm.SetDCTEnforcer(childID, enforcer)
	if err := k.perm.PreGrant(childID, signed.AllowedScopes); err != nil {
		return Outcome{}, reacherr.Wrap(reacherr.CodeInternal, "failed to pre-grant child scopes", err)
	}
	defer k.perm.ClearSession(childID)

	session, _ := k.Run(ctx, RunRequest{SessionID: childID, Task: req.Task, Limits: req.Limits, Agentic: req.Agentic})

	agg := session.Aggregates()
	return Outcome{
		Status:      session.Status(),
		Findings:    session.findingsSnapshot(),
		TokensUsed:  agg.TokensUsed,
		CostUsedUSD: agg.CostUsedUSD,
		Failure:     session.Failure(),
	}, nil
}
