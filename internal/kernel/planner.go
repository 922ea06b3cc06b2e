package kernel

import (
	"context"
	"encoding/json"
	"strconv"
)

// Planner is the external collaborator that turns a task and the
// current state snapshot into the next Plan (spec.md §6). It is
// consumed, not implemented, by the core — the Kernel treats its output
// as untrusted input: schema-validated and sanity-checked before any
// Step runs. Shaped after the teacher's internal/autonomous.Planner
// interface (a single Generate method returning a structured blueprint),
// narrowed from that package's open-ended OrchestrationBlueprint to the
// flat Plan/Usage pair spec.md §6 actually specifies.
type Planner interface {
	GeneratePlan(ctx context.Context, task string, toolSchemas []ToolSchema, snapshot StateSnapshot, constraints Constraints) (PlanResult, error)
}

// StaticPlanner is a trivial Planner used in tests and as a startup
// placeholder before a real planner is wired in — grounded on the
// teacher's autonomous.StaticPlanner fixture. It returns exactly one
// no-op step on the first call and an empty plan on every call after,
// which is enough to drive the loop to session.completed without a live
// model.
type StaticPlanner struct {
	Tool string
}

// GeneratePlan implements Planner.
func (p StaticPlanner) GeneratePlan(_ context.Context, _ string, _ []ToolSchema, snapshot StateSnapshot, _ Constraints) (PlanResult, error) {
	if snapshot.Iteration > 0 {
		return PlanResult{Plan: Plan{Steps: nil}}, nil
	}
	tool := p.Tool
	if tool == "" {
		tool = "noop"
	}
	return PlanResult{
		Plan: Plan{
			Goal: snapshot.Task,
			Steps: []Step{
				{
					ID:            "step-1",
					Title:         "no-op",
					Tool:          ToolRef{Name: tool},
					Input:         map[string]any{},
					FailurePolicy: FailurePolicyAbort,
				},
			},
		},
	}, nil
}

// sanityCheckPlan applies spec.md §6's "output is schema-validated and
// the step count + tool references are sanity-checked" rule at the
// boundary where an untrusted Planner's output enters the Kernel. It
// does not validate each step's input against its tool's schema — that
// is the Tool Runtime's job at execute() time — only that the plan
// itself is well-formed enough to iterate over.
func sanityCheckPlan(plan Plan, known map[string]ToolSchema) []string {
	var problems []string
	for i, step := range plan.Steps {
		if step.ID == "" {
			problems = append(problems, jsonPath(i, "id is required"))
		}
		if step.Tool.Name == "" {
			problems = append(problems, jsonPath(i, "tool.name is required"))
			continue
		}
		if known != nil {
			if _, ok := known[step.Tool.Name]; !ok {
				problems = append(problems, jsonPath(i, "references unknown tool "+step.Tool.Name))
			}
		}
		switch step.FailurePolicy {
		case FailurePolicyAbort, FailurePolicyContinue, FailurePolicyRetry, "":
		default:
			problems = append(problems, jsonPath(i, "invalid failure_policy "+string(step.FailurePolicy)))
		}
	}
	return problems
}

func jsonPath(i int, msg string) string {
	b, _ := json.Marshal(msg)
	return "steps[" + strconv.Itoa(i) + "]: " + string(b)
}
