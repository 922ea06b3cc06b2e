// Package permission implements the capability-scope grant engine and
// session delegation boundary (spec.md §4.2): every tool call is gated by
// a scope check, grants have a lifetime, and a delegation capability
// token enforcer can veto any decision before the approval callback is
// ever consulted.
package permission

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"reach/core/internal/journal"
	"reach/core/internal/logging"
	"reach/core/internal/plugins"
	"reach/core/internal/reacherr"
)

// ApprovalCallback is consulted when no grant satisfies a required scope.
// It is a suspension point, not a blocking call on the execution thread
// (spec.md §9): the core awaits its return value but never assumes
// synchronous completion within the same tick.
type ApprovalCallback func(ctx context.Context, req Request) (Decision, error)

// DenyAll is the default ApprovalCallback (spec.md §6: "a callback for
// approvals (default: deny)").
func DenyAll(ctx context.Context, req Request) (Decision, error) {
	return DecisionDeny, nil
}

// DCTEnforcer is a delegation capability token enforcer installed via
// SetDCTEnforcer. Before any approval callback runs, it is asked whether
// a scope is within the token's bounds; a false vote short-circuits to
// deny regardless of grants already present (spec.md §4.2).
type DCTEnforcer interface {
	ValidateScope(scope Scope) bool
}

// Request carries a tool-call's permission check context.
type Request struct {
	SessionID      string
	StepID         string
	Tool           string
	RequiredScopes []string
}

// CheckResult is the outcome of Check.
type CheckResult struct {
	Allowed bool
	Grants  []Grant
	Denials []string
}

// Engine is the permission gate. One Engine instance is shared across all
// sessions in a process; per-session state lives in sessionGrants.
type Engine struct {
	j          *journal.Journal
	approvalCB ApprovalCallback
	logger     *logging.Logger
	clock      func() time.Time

	mu            sync.RWMutex
	sessionGrants map[string][]*Grant // session id -> grants
	alwaysGrants  map[string]*Grant    // scope string -> grant, persists across sessions
	dctEnforcers  map[string]DCTEnforcer
	profiles      map[string]*Profile // session id -> policy profile (spec.md §3)
	hooks         *plugins.Dispatcher

	cacheMu sync.RWMutex
	cache   map[string]CheckResult
}

// SetHooks installs the plugin dispatcher Check fires permission_decision
// through after every scope decision (grant or denial). Passing nil
// disables hook dispatch for this Engine.
func (e *Engine) SetHooks(d *plugins.Dispatcher) { e.hooks = d }

func (e *Engine) fireDecisionHook(ctx context.Context, sessionID, scope, decision string) {
	if e.hooks == nil {
		return
	}
	e.hooks.Dispatch(ctx, sessionID, plugins.HookPermissionDecision, map[string]any{
		"scope":    scope,
		"decision": decision,
	})
}

// New constructs an Engine. j must not be nil: every grant decision is
// journaled (spec.md §4.2 "Responsibility").
func New(j *journal.Journal, approvalCB ApprovalCallback, logger *logging.Logger) *Engine {
	if approvalCB == nil {
		approvalCB = DenyAll
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		j:             j,
		approvalCB:    approvalCB,
		logger:        logger.WithComponent("permission"),
		clock:         time.Now,
		sessionGrants: make(map[string][]*Grant),
		alwaysGrants:  make(map[string]*Grant),
		dctEnforcers:  make(map[string]DCTEnforcer),
		profiles:      make(map[string]*Profile),
		cache:         make(map[string]CheckResult),
	}
}

// SetProfile installs sessionID's policy profile. Pass nil to fall back
// to DefaultProfile's behavior.
func (e *Engine) SetProfile(sessionID string, profile *Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if profile == nil {
		delete(e.profiles, sessionID)
	} else {
		e.profiles[sessionID] = profile
	}
}

func (e *Engine) profileFor(sessionID string) *Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.profiles[sessionID]; ok {
		return p
	}
	return DefaultProfile()
}

// SetDCTEnforcer installs a delegation capability token enforcer for a
// session. Pass nil to remove it.
func (e *Engine) SetDCTEnforcer(sessionID string, enforcer DCTEnforcer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enforcer == nil {
		delete(e.dctEnforcers, sessionID)
	} else {
		e.dctEnforcers[sessionID] = enforcer
	}
	e.invalidateSession(sessionID)
}

// Check gates a tool call: for each required scope, an active grant
// satisfies it, or the approval callback is consulted and its decision
// recorded as a new grant. Decisions (and denials) are memoized per
// (sessionID, sorted scopes) until the session's grant set changes.
func (e *Engine) Check(ctx context.Context, req Request) (CheckResult, error) {
	key := cacheKey(req)
	e.cacheMu.RLock()
	if cached, ok := e.cache[key]; ok {
		e.cacheMu.RUnlock()
		return cached, nil
	}
	e.cacheMu.RUnlock()

	result, err := e.checkUncached(ctx, req)
	if err != nil {
		return CheckResult{}, err
	}

	// A result touching an allow_once grant must never be memoized: the
	// grant is single-use by definition, so caching it would let every
	// later identical Check bypass consumption and observe a stale
	// "allowed" answer forever (spec.md §4.2).
	if !containsAllowOnce(result) {
		e.cacheMu.Lock()
		e.cache[key] = result
		e.cacheMu.Unlock()
	}
	return result, nil
}

func containsAllowOnce(result CheckResult) bool {
	for _, g := range result.Grants {
		if g.Decision == DecisionAllowOnce {
			return true
		}
	}
	return false
}

func cacheKey(req Request) string {
	scopes := append([]string(nil), req.RequiredScopes...)
	sort.Strings(scopes)
	var b strings.Builder
	b.WriteString(req.SessionID)
	b.WriteByte('|')
	b.WriteString(strings.Join(scopes, ","))
	return b.String()
}

func (e *Engine) checkUncached(ctx context.Context, req Request) (CheckResult, error) {
	result := CheckResult{Allowed: true}

	e.mu.RLock()
	enforcer := e.dctEnforcers[req.SessionID]
	e.mu.RUnlock()
	profile := e.profileFor(req.SessionID)

	now := e.clock()
	for _, raw := range req.RequiredScopes {
		scope, err := ParseScope(raw)
		if err != nil {
			return CheckResult{}, reacherr.Wrap(reacherr.CodeInvalidEvent, "malformed required scope", err)
		}

		if enforcer != nil && !enforcer.ValidateScope(scope) {
			result.Allowed = false
			result.Denials = append(result.Denials, raw)
			e.journalDenied(req, raw, "delegation_out_of_bounds")
			e.fireDecisionHook(ctx, req.SessionID, raw, "deny")
			continue
		}

		if grant, ok := e.findActiveGrant(req.SessionID, scope, now, profile.AllowWildcardTargets); ok {
			if grant.Decision == DecisionDeny {
				result.Allowed = false
				result.Denials = append(result.Denials, raw)
				e.fireDecisionHook(ctx, req.SessionID, raw, "deny")
				continue
			}
			if grant.Decision == DecisionAllowOnce {
				e.mu.Lock()
				grant.consumed = true
				e.mu.Unlock()
			}
			result.Grants = append(result.Grants, *grant)
			e.fireDecisionHook(ctx, req.SessionID, raw, string(grant.Decision))
			continue
		}

		var decision Decision
		if profile.RequireExplicitApproval {
			// A session whose profile demands explicit approval never
			// consults the interactive callback — only a grant already
			// active for the session (checked above) can satisfy it.
			decision = DecisionDeny
		} else {
			decision, err = e.approvalCB(ctx, req)
			if err != nil {
				// Approval-callback errors are treated as deny (spec.md §7).
				decision = DecisionDeny
			}
		}
		g := &Grant{Scope: scope, Decision: decision, Granter: GranterUser, GrantedAt: now}
		if profile.MaxGrantsPerSession > 0 && e.grantCount(req.SessionID) >= profile.MaxGrantsPerSession {
			result.Allowed = false
			result.Denials = append(result.Denials, raw)
			e.journalDenied(req, raw, "max_grants_per_session_exceeded")
			e.fireDecisionHook(ctx, req.SessionID, raw, "deny")
			continue
		}
		e.recordGrant(req.SessionID, g)
		if decision == DecisionAllowOnce {
			// The issuing check is itself the grant's one permitted use
			// (spec.md §4.2: "consumed by the first subsequent use of
			// that exact scope") — mark it spent immediately so a later
			// identical Check can't find it still active.
			e.mu.Lock()
			g.consumed = true
			e.mu.Unlock()
		}

		if decision == DecisionDeny {
			result.Allowed = false
			result.Denials = append(result.Denials, raw)
			e.journalDenied(req, raw, "denied_by_approval")
			e.fireDecisionHook(ctx, req.SessionID, raw, "deny")
			continue
		}
		result.Grants = append(result.Grants, *g)
		e.journalGranted(req.SessionID, g)
		e.fireDecisionHook(ctx, req.SessionID, raw, string(decision))
	}

	return result, nil
}

// findActiveGrant returns the first active grant matching scope. With
// wildcardTargets false, a grant's target must equal scope's target
// exactly; a "*" target no longer covers other targets.
func (e *Engine) findActiveGrant(sessionID string, scope Scope, now time.Time, wildcardTargets bool) (*Grant, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	usable := func(g *Grant) bool {
		return g.active(now) && g.Scope.Matches(scope) &&
			(wildcardTargets || g.Scope.Target == scope.Target)
	}
	for _, g := range e.sessionGrants[sessionID] {
		if usable(g) {
			return g, true
		}
	}
	for _, g := range e.alwaysGrants {
		if usable(g) {
			return g, true
		}
	}
	return nil, false
}

func (e *Engine) grantCount(sessionID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessionGrants[sessionID])
}

func (e *Engine) recordGrant(sessionID string, g *Grant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g.Decision == DecisionAllowAlways {
		e.alwaysGrants[g.Scope.String()] = g
	}
	e.sessionGrants[sessionID] = append(e.sessionGrants[sessionID], g)
	e.invalidateSessionLocked(sessionID)
}

// PreGrant installs grants without invoking the approval callback, used
// to materialize delegation-token scopes into a child session. Per
// DESIGN.md's resolution of spec.md §9's Open Question, one aggregated
// permission.pregranted event is journaled for the whole call.
func (e *Engine) PreGrant(sessionID string, scopes []string) error {
	now := e.clock()
	granted := make([]*Grant, 0, len(scopes))
	for _, raw := range scopes {
		scope, err := ParseScope(raw)
		if err != nil {
			return reacherr.Wrap(reacherr.CodeInvalidEvent, "malformed pregrant scope", err)
		}
		granted = append(granted, &Grant{Scope: scope, Decision: DecisionAllowSession, Granter: GranterDelegation, GrantedAt: now})
	}

	e.mu.Lock()
	e.sessionGrants[sessionID] = append(e.sessionGrants[sessionID], granted...)
	e.invalidateSessionLocked(sessionID)
	e.mu.Unlock()

	if e.j != nil {
		e.j.TryEmit(sessionID, journal.KindPermissionPreGranted, map[string]any{
			"scopes": scopes,
		})
	}
	return nil
}

// IsGranted is a pure check against currently active grants — it never
// consults the approval callback and never mutates state.
func (e *Engine) IsGranted(sessionID string, rawScope string) bool {
	scope, err := ParseScope(rawScope)
	if err != nil {
		return false
	}
	_, ok := e.findActiveGrant(sessionID, scope, e.clock(), e.profileFor(sessionID).AllowWildcardTargets)
	return ok
}

// ListGrants returns a snapshot of sessionID's current grants.
func (e *Engine) ListGrants(sessionID string) []Grant {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants := e.sessionGrants[sessionID]
	out := make([]Grant, len(grants))
	for i, g := range grants {
		out[i] = *g
	}
	return out
}

// ClearSession drops all session-scoped grants and the DCT enforcer for
// sessionID. allow_always grants, being process-global, are unaffected.
func (e *Engine) ClearSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessionGrants, sessionID)
	delete(e.dctEnforcers, sessionID)
	e.invalidateSessionLocked(sessionID)
}

func (e *Engine) invalidateSession(sessionID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.invalidateSessionCacheLocked(sessionID)
}

func (e *Engine) invalidateSessionLocked(sessionID string) {
	// Called while e.mu is held; take the cache lock separately to avoid
	// a consistent lock-ordering requirement between the two.
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.invalidateSessionCacheLocked(sessionID)
}

func (e *Engine) invalidateSessionCacheLocked(sessionID string) {
	prefix := sessionID + "|"
	for k := range e.cache {
		if strings.HasPrefix(k, prefix) {
			delete(e.cache, k)
		}
	}
}

func (e *Engine) journalGranted(sessionID string, g *Grant) {
	if e.j == nil {
		return
	}
	e.j.TryEmit(sessionID, journal.KindPermissionGranted, map[string]any{
		"scope":    g.Scope.String(),
		"decision": string(g.Decision),
		"granter":  string(g.Granter),
	})
}

func (e *Engine) journalDenied(req Request, scope, reason string) {
	if e.j == nil {
		return
	}
	e.j.TryEmit(req.SessionID, journal.KindPermissionDenied, map[string]any{
		"scopes": []string{scope},
		"reason": reason,
		"tool":   req.Tool,
		"step_id": req.StepID,
	})
}

// DeniedError builds the PERMISSION_DENIED error naming the denied scopes,
// for ToolRuntime to return from execute() step 4.
func DeniedError(denials []string) error {
	return reacherr.New(reacherr.CodePermissionDenied, fmt.Sprintf("scopes denied: %s", strings.Join(denials, ", "))).
		WithDetails(map[string]any{"scopes": denials})
}
