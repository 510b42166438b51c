package flow

// Storage is the durable mapping from atom name to persisted state,
// intention, progress and last result, plus the flow-level state that
// gates new scheduling.
//
// The runner is the only writer of intentions during a run; reads must be
// safe to perform concurrently (other components may inspect state
// mid-run). Implementations answer reads for unknown atoms with the
// defaults of a fresh atom: StatePending, IntentionExecute, zero progress
// and no result.
type Storage interface {
	// FlowState returns the run-level state. The runner schedules new
	// work only while this is StateRunning.
	FlowState() State

	// SetFlowState transitions the run-level state. Callers use it to
	// suspend a run; the runner itself never writes it.
	SetFlowState(s State) error

	// Intention returns the stored directive for the named atom.
	Intention(name string) Intention

	// SetIntention stores the directive for the named atom.
	SetIntention(name string, i Intention) error

	// AtomState returns the lifecycle state of the named atom.
	AtomState(name string) State

	// SetAtomState transitions the lifecycle state of the named atom.
	SetAtomState(name string, s State) error

	// Progress returns the named atom's progress. Tasks use it as a 0..1
	// completion fraction; retry controllers use it as an attempt count.
	Progress(name string) float64

	// SetProgress stores the named atom's progress.
	SetProgress(name string, p float64) error

	// Save persists the named atom's last result. The result may be a
	// *Failure.
	Save(name string, result any) error

	// Result returns the named atom's last saved result, or nil if none
	// has been saved.
	Result(name string) any
}
