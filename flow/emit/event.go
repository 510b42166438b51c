// Package emit provides pluggable observability for graph execution.
package emit

// Event is one observability event from a flow run: a progress transition
// of the runner or the completion of a single atom.
type Event struct {
	// FlowID identifies the run that emitted this event.
	FlowID string

	// State is the runner's progress state when the event was emitted
	// (RESUMING, SCHEDULING, WAITING, ANALYZING or a terminal state).
	State string

	// AtomID identifies the atom the event concerns. Empty for
	// runner-level progress events.
	AtomID string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "event": action kind that completed (EXECUTED, REVERTED)
	//   - "error": failure details for failed atoms
	//   - "duration_ms": wait or execution duration
	Meta map[string]any
}
