package kernel

import (
	"sync"
	"time"

	"reach/core/internal/permission"
)

// Status is a Session's position in the state machine spec.md §4.4
// diagrams.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether s is one of the three states the loop never
// leaves (spec.md §3: "terminal on any of {completed, failed, aborted}").
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Aggregates are the running totals a Session accumulates across its
// lifetime (spec.md §3).
type Aggregates struct {
	TokensUsed   int64
	CostUsedUSD  float64
	ElapsedMS    int64
	Iterations   int64
	StepsExecuted int64
}

// Session is one task's execution context, from submission to terminal
// state (spec.md §3). It is mutated only by the Kernel loop that owns it
// — spec.md §5's "single-owner execution loop" — external readers
// (subagent status queries, a future API layer) go through its
// lock-guarded readers (Status, Failure, Aggregates) rather than
// touching the unexported fields.
type Session struct {
	ID        string
	Task      string
	CreatedAt time.Time
	ParentID  string // empty for a root session

	mu       sync.RWMutex
	status   Status
	limits   Limits
	tracker  *LimitTracker
	findings []Finding
	failure  *FailureInfo
	aborted  bool
}

// FailureInfo names why a Session ended in StatusFailed, mirroring the
// bracketed reason the state-machine diagram annotates failed
// transitions with (spec.md §4.4: "failed [PLANNER_EMPTY_INITIAL]").
type FailureInfo struct {
	Code   string
	Reason string
}

// NewSession constructs a Session in StatusCreated. limits is copied
// into a fresh LimitTracker so each session's budget tracking is
// independent even when Limits values are shared by value across
// sibling subagent sessions.
func NewSession(id, task string, limits Limits) *Session {
	return &Session{
		ID:        id,
		Task:      task,
		CreatedAt: time.Now(),
		status:    StatusCreated,
		limits:    limits,
		tracker:   NewLimitTracker(limits),
	}
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// RequestAbort marks the session for external abort (spec.md §5
// "Cancellation & timeouts"). The loop reads the mark before each planner
// call and before each step, and ends the session as aborted at the first
// such check. A tool call already running is not cancelled: it runs to
// completion or to its own timeout first.
func (s *Session) RequestAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

func (s *Session) abortRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aborted
}

func (s *Session) recordFinding(f Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, f)
}

func (s *Session) findingsSnapshot() []Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

func (s *Session) setFailure(code, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = &FailureInfo{Code: code, Reason: reason}
}

// Failure returns why the session failed, or nil if it did not (or
// hasn't yet).
func (s *Session) Failure() *FailureInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// Aggregates returns the session's current running totals.
func (s *Session) Aggregates() Aggregates {
	snap := s.tracker.Snapshot()
	return Aggregates{
		TokensUsed:    snap.TokensSpent,
		CostUsedUSD:   snap.CostSpentUSD,
		ElapsedMS:     snap.ElapsedMS,
		Iterations:    snap.Iterations,
		StepsExecuted: snap.Steps,
	}
}

// Outcome is what runSubagent returns to its caller: a child session's
// failures never propagate as Go errors to the parent (spec.md §4.4
// "Subagent delegation").
type Outcome struct {
	Status     Status
	Findings   []Finding
	TokensUsed int64
	CostUsedUSD float64
	Failure    *FailureInfo
}

// childPermissionSetup bundles what runSubagent must install on the
// shared permission.Engine before the child session executes a single
// step, so the child can never exceed what its delegation token grants.
type childPermissionSetup struct {
	enforcer permission.DCTEnforcer
	scopes   []string
}
