package kernel

import (
	"sync/atomic"
	"time"
)

// Limits is a session's budget across every dimension spec.md §4.4
// tracks (max_tokens, max_cost_usd, max_duration_ms, max_iterations,
// max_steps). A zero value for a field means that dimension is
// unbounded.
type Limits struct {
	MaxTokens      int64
	MaxCostUSD     float64
	MaxDurationMS  int64
	MaxIterations  int64
	MaxSteps       int64
}

// Dimension names a limit that fired, used in the limit.exceeded
// event payload (spec.md §4.4).
type Dimension string

const (
	DimensionTokens     Dimension = "max_tokens"
	DimensionCostUSD    Dimension = "max_cost_usd"
	DimensionDurationMS Dimension = "max_duration_ms"
	DimensionIterations Dimension = "max_iterations"
	DimensionSteps      Dimension = "max_steps"
)

// LimitTracker accumulates spend against Limits and reports the first
// dimension to breach. Grounded on the teacher's
// internal/jobs.BudgetController: atomic running totals updated from
// the kernel's own thread (spec.md §5: "PermissionEngine grant map:
// mutated only from the session's own thread"), generalized from
// budget's USD-cents-only tracking to all five limit dimensions, and
// simplified from BudgetController's predictive
// reserve/commit/rollback allocation model (cost-model variance,
// spend-velocity EMA, linear-regression projection) since spec.md's
// limits are hard ceilings checked before each plan call and each
// step, not a probabilistic admission-control budget.
type LimitTracker struct {
	limits Limits
	start  time.Time

	tokensSpent atomic.Int64
	costSpentMicros atomic.Int64 // USD * 1e6, integer precision
	iterations  atomic.Int64
	steps       atomic.Int64
}

// NewLimitTracker constructs a tracker whose wall-clock budget starts
// now.
func NewLimitTracker(limits Limits) *LimitTracker {
	return &LimitTracker{limits: limits, start: time.Now()}
}

// RecordTokens adds to the running token total.
func (t *LimitTracker) RecordTokens(n int64) {
	t.tokensSpent.Add(n)
}

// RecordCost adds to the running USD total.
func (t *LimitTracker) RecordCost(usd float64) {
	t.costSpentMicros.Add(int64(usd * 1_000_000))
}

// RecordIteration increments the plan-call counter.
func (t *LimitTracker) RecordIteration() {
	t.iterations.Add(1)
}

// RecordStep increments the total-steps-executed counter.
func (t *LimitTracker) RecordStep() {
	t.steps.Add(1)
}

// Check reports the first dimension in breach, if any. Evaluated
// before each plan call and before each step (spec.md §4.4 "Limits").
func (t *LimitTracker) Check() (Dimension, bool) {
	if t.limits.MaxTokens > 0 && t.tokensSpent.Load() >= t.limits.MaxTokens {
		return DimensionTokens, true
	}
	if t.limits.MaxCostUSD > 0 && float64(t.costSpentMicros.Load())/1_000_000 >= t.limits.MaxCostUSD {
		return DimensionCostUSD, true
	}
	if t.limits.MaxDurationMS > 0 && time.Since(t.start).Milliseconds() >= t.limits.MaxDurationMS {
		return DimensionDurationMS, true
	}
	if t.limits.MaxIterations > 0 && t.iterations.Load() >= t.limits.MaxIterations {
		return DimensionIterations, true
	}
	if t.limits.MaxSteps > 0 && t.steps.Load() >= t.limits.MaxSteps {
		return DimensionSteps, true
	}
	return "", false
}

// Snapshot returns the current totals, for findings summaries and
// subagent reporting.
type Snapshot struct {
	TokensSpent int64
	CostSpentUSD float64
	Iterations  int64
	Steps       int64
	ElapsedMS   int64
}

func (t *LimitTracker) Snapshot() Snapshot {
	return Snapshot{
		TokensSpent:  t.tokensSpent.Load(),
		CostSpentUSD: float64(t.costSpentMicros.Load()) / 1_000_000,
		Iterations:   t.iterations.Load(),
		Steps:        t.steps.Load(),
		ElapsedMS:    time.Since(t.start).Milliseconds(),
	}
}
