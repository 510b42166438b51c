package emit

// Emitter receives observability events from a flow run.
//
// Implementations should be:
//   - Non-blocking: never slow down the runner's control loop
//   - Thread-safe: completion events may arrive from worker goroutines
//   - Resilient: a failing backend must not crash the run
//
// Emit must not panic; backend errors are the emitter's to handle.
type Emitter interface {
	Emit(event Event)
}
