package flow

// State is a lifecycle value for an atom or for the flow as a whole.
//
// Atom states describe what an atom did (PENDING, RUNNING, SUCCESS, ...).
// Flow states describe the run itself (RUNNING, SUSPENDED, SUCCESS,
// REVERTED). The runner additionally yields transient progress states
// (RESUMING, SCHEDULING, WAITING, ANALYZING) while iterating; those are
// informational and never persisted.
type State string

const (
	// Atom lifecycle states.
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateReverting State = "REVERTING"
	StateRetrying  State = "RETRYING"
	StateSuccess   State = "SUCCESS"
	StateFailure   State = "FAILURE"
	StateReverted  State = "REVERTED"

	// Flow-level terminal states. StateRunning doubles as the flow-level
	// "permitted to schedule new work" state.
	StateSuspended State = "SUSPENDED"

	// Progress states yielded by GraphRunner.RunIter.
	StateResuming   State = "RESUMING"
	StateScheduling State = "SCHEDULING"
	StateWaiting    State = "WAITING"
	StateAnalyzing  State = "ANALYZING"
)

// Intention is the stored directive for an atom: what should happen to it
// next. Intention is orthogonal to State - intention says what should
// happen, state says what did.
type Intention string

const (
	IntentionExecute Intention = "EXECUTE"
	IntentionRevert  Intention = "REVERT"
	IntentionRetry   Intention = "RETRY"
)

// Decision is a retry controller's answer to a failure inside its scope.
type Decision string

const (
	// DecideRetry re-arms the controller's subflow and runs it again.
	DecideRetry Decision = "RETRY"

	// DecideRevert escalates the failure to the next enclosing controller.
	DecideRevert Decision = "REVERT"

	// DecideRevertAll abandons retrying and reverts the whole flow.
	DecideRevertAll Decision = "REVERT_ALL"
)

// Event tags a future's resolution with the kind of action that produced
// it.
type Event string

const (
	Executed Event = "EXECUTED"
	Reverted Event = "REVERTED"
)
