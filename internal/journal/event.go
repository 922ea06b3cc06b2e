package journal

import "time"

// Kind is the discriminator tag of an event, driving its payload schema
// (spec.md §3: "typed event kind (enumerated taxonomy: session lifecycle,
// planner, step, tool, permission, limit, plugin, swarm)"). The core never
// emits swarm.* kinds itself — they exist in the taxonomy for forward
// compatibility with the out-of-scope peer-delegation layer, which may
// journal through the same file.
type Kind string

const (
	KindSessionCreated   Kind = "session.created"
	KindSessionStarted   Kind = "session.started"
	KindSessionCompleted Kind = "session.completed"
	KindSessionFailed    Kind = "session.failed"
	KindSessionAborted   Kind = "session.aborted"

	KindPlannerRequested    Kind = "planner.requested"
	KindPlannerPlanReceived Kind = "planner.plan_received"
	KindPlannerPlanRejected Kind = "planner.plan_rejected"
	KindPlannerError        Kind = "planner.error"

	KindStepStarted   Kind = "step.started"
	KindStepSucceeded Kind = "step.succeeded"
	KindStepFailed    Kind = "step.failed"

	KindToolStarted   Kind = "tool.started"
	KindToolSucceeded Kind = "tool.succeeded"
	KindToolFailed    Kind = "tool.failed"

	KindPermissionChecked    Kind = "permission.checked"
	KindPermissionGranted    Kind = "permission.granted"
	KindPermissionDenied     Kind = "permission.denied"
	KindPermissionPreGranted Kind = "permission.pregranted"
	KindDelegationIssued     Kind = "permission.delegation_issued"

	KindLimitExceeded Kind = "limit.exceeded"

	KindPluginHookInvoked Kind = "plugin.hook_invoked"
	KindPluginHookError   Kind = "plugin.hook_error"
)

// schemaVersion is stamped into every payload so a compaction or a future
// reader can detect format drift, grounded in the teacher's
// protocolSchemaVersion constant.
const schemaVersion = "1.0.0"

// Event is a single, immutable entry in the journal. Field order here is
// the on-disk field order (spec.md §6): event_id, timestamp, session_id,
// type, payload, hash_prev, seq — encoding/json preserves struct field
// declaration order, so this struct IS the wire format.
type Event struct {
	ID        string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Type      Kind           `json:"type"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"hash_prev,omitempty"`
	Seq       uint64         `json:"seq"`
}

// requiredPayloadKeys lists the keys validatePayload requires per kind,
// generalized from the teacher's validatePayloadByType table in
// jobs/event_schema.go to this taxonomy's kinds. Kinds not listed accept
// any payload shape (including empty).
var requiredPayloadKeys = map[Kind][]string{
	KindSessionCreated:      {"task"},
	KindPlannerPlanReceived: {"plan_id", "step_count"},
	KindPlannerPlanRejected: {"reason"},
	KindStepStarted:         {"step_id", "tool"},
	KindStepFailed:          {"step_id", "code"},
	KindToolFailed:          {"tool", "code"},
	KindPermissionDenied:    {"scopes"},
	KindLimitExceeded:       {"dimension"},
}

// validatePayload checks a payload against the required-key table for its
// kind. It does not validate value types — the payload is an open mapping
// by design (spec.md §9) — only that the producer supplied the keys a
// reader of that kind can depend on.
func validatePayload(kind Kind, payload map[string]any) []string {
	required, ok := requiredPayloadKeys[kind]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range required {
		if _, present := payload[key]; !present {
			missing = append(missing, key)
		}
	}
	return missing
}
