package kernel

import "time"

// FailurePolicy names how the loop reacts to a failed Step (spec.md §3,
// §4.4).
type FailurePolicy string

const (
	FailurePolicyAbort    FailurePolicy = "abort"
	FailurePolicyContinue FailurePolicy = "continue"
	FailurePolicyRetry    FailurePolicy = "retry"
)

// ToolRef names the tool a Step invokes, with an optional pinned version.
type ToolRef struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Step is a single tool invocation inside a Plan (spec.md §3).
type Step struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Tool            ToolRef        `json:"tool"`
	Input           map[string]any `json:"input"`
	SuccessCriteria []string       `json:"success_criteria,omitempty"`
	FailurePolicy   FailurePolicy  `json:"failure_policy"`
	TimeoutMS       int            `json:"timeout_ms,omitempty"`
	MaxRetries      int            `json:"max_retries,omitempty"`
}

// Plan is the planner's output for one iteration (spec.md §3). It is
// immutable once accepted by the loop — the kernel never mutates a Plan
// it received, only the running Session state alongside it. A Plan with
// zero Steps signals "work complete" on iteration >= 1; on iteration 0 it
// is rejected as degenerate (spec.md §4.4).
type Plan struct {
	ID           string    `json:"id"`
	SchemaVersion string   `json:"schema_version"`
	Goal         string    `json:"goal"`
	Assumptions  []string  `json:"assumptions,omitempty"`
	Steps        []Step    `json:"steps"`
	CreatedAt    time.Time `json:"created_at"`
}

// Usage carries the planner's own token/cost accounting for one
// generatePlan call (spec.md §6 "Planner interface").
type Usage struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
	Model        string `json:"model"`
}

// PlanResult is what Planner.GeneratePlan returns: the plan plus the
// usage it cost to produce it.
type PlanResult struct {
	Plan  Plan
	Usage Usage
}

// Constraints narrows what the planner is allowed to propose — derived
// from the session's remaining budget and any caller-supplied limits, so
// an honest planner never proposes work it already knows will be
// rejected.
type Constraints struct {
	RemainingTokens     int64
	RemainingCostUSD    float64
	RemainingSteps      int64
	MaxStepsPerIteration int
}

// ToolSchema is the subset of a tool manifest the planner needs to
// reference a tool by name and understand its input/output shape
// (spec.md §6: "generatePlan(task, toolSchemas[], ...)"). It intentionally
// does not carry permissions or runner details — those are the Tool
// Runtime's concern, not the planner's.
type ToolSchema struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
}

// Finding is a single accumulated observation from a completed Step,
// folded into the next planner call's stateSnapshot (spec.md §4.4
// "snapshot = current session state + accumulated step findings").
type Finding struct {
	StepID  string `json:"step_id"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Code    string `json:"code,omitempty"`
}

// StateSnapshot is what the loop hands the planner on every call: enough
// of the running session to plan the next iteration without replaying
// the whole journal.
type StateSnapshot struct {
	SessionID  string    `json:"session_id"`
	Task       string    `json:"task"`
	Iteration  int64     `json:"iteration"`
	Findings   []Finding `json:"findings"`
	TokensUsed int64     `json:"tokens_used"`
	CostUsedUSD float64  `json:"cost_used_usd"`
}
