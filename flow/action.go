package flow

import "context"

// TaskAction translates scheduling decisions about plain tasks into
// futures and future resolutions back into persisted state transitions.
type TaskAction interface {
	// ScheduleExecution marks the task running and hands it to the
	// executor.
	ScheduleExecution(ctx context.Context, t *Task) (*Future, error)

	// ScheduleReversion marks the task reverting and hands its
	// compensation to the executor.
	ScheduleReversion(ctx context.Context, t *Task) (*Future, error)

	// CompleteExecution persists an execution outcome: the result and
	// StateSuccess, or the failure and StateFailure.
	CompleteExecution(t *Task, result any) error

	// CompleteReversion persists a reversion outcome: StateReverted, or
	// the failure and StateFailure.
	CompleteReversion(t *Task, result any) error

	// ChangeState transitions the task's persisted state and progress.
	ChangeState(t *Task, s State, progress float64) error
}

// RetryAction translates scheduling decisions about retry controllers and
// answers their failure policy.
type RetryAction interface {
	// ScheduleExecution runs the controller, recording one more attempt.
	ScheduleExecution(ctx context.Context, r *Retry) (*Future, error)

	// ScheduleReversion reverts the controller, clearing its attempt
	// history.
	ScheduleReversion(ctx context.Context, r *Retry) (*Future, error)

	// OnFailure asks the controller's policy how to respond to a failure
	// inside its scope.
	OnFailure(r *Retry, failed Atom, failure *Failure) Decision

	// ChangeState transitions the controller's persisted state.
	ChangeState(r *Retry, s State) error
}

type taskAction struct {
	st Storage
	ex Executor
}

// NewTaskAction creates the standard task action over the given storage
// and executor.
func NewTaskAction(st Storage, ex Executor) TaskAction {
	return &taskAction{st: st, ex: ex}
}

func (a *taskAction) ScheduleExecution(ctx context.Context, t *Task) (*Future, error) {
	if err := a.ChangeState(t, StateRunning, 0); err != nil {
		return nil, err
	}
	return a.ex.ExecuteTask(ctx, t), nil
}

func (a *taskAction) ScheduleReversion(ctx context.Context, t *Task) (*Future, error) {
	if err := a.ChangeState(t, StateReverting, 0); err != nil {
		return nil, err
	}
	return a.ex.RevertTask(ctx, t, a.st.Result(t.Name())), nil
}

func (a *taskAction) CompleteExecution(t *Task, result any) error {
	if err := a.st.Save(t.Name(), result); err != nil {
		return err
	}
	if _, failed := result.(*Failure); failed {
		return a.st.SetAtomState(t.Name(), StateFailure)
	}
	if err := a.st.SetProgress(t.Name(), 1); err != nil {
		return err
	}
	return a.st.SetAtomState(t.Name(), StateSuccess)
}

func (a *taskAction) CompleteReversion(t *Task, result any) error {
	if f, failed := result.(*Failure); failed {
		if err := a.st.Save(t.Name(), f); err != nil {
			return err
		}
		return a.st.SetAtomState(t.Name(), StateFailure)
	}
	return a.st.SetAtomState(t.Name(), StateReverted)
}

func (a *taskAction) ChangeState(t *Task, s State, progress float64) error {
	if err := a.st.SetAtomState(t.Name(), s); err != nil {
		return err
	}
	return a.st.SetProgress(t.Name(), progress)
}

type retryAction struct {
	st Storage
}

// NewRetryAction creates the standard retry action over the given
// storage. Controller bookkeeping is cheap, so controllers run inline and
// their futures come back already resolved.
func NewRetryAction(st Storage) RetryAction {
	return &retryAction{st: st}
}

// attempts reads the controller's attempt count from its progress record.
func (a *retryAction) attempts(r *Retry) int {
	return int(a.st.Progress(r.Name()))
}

func (a *retryAction) ScheduleExecution(_ context.Context, r *Retry) (*Future, error) {
	if err := a.st.SetAtomState(r.Name(), StateRunning); err != nil {
		return nil, err
	}
	attempt := a.attempts(r) + 1
	if err := a.st.SetProgress(r.Name(), float64(attempt)); err != nil {
		return nil, err
	}
	if err := a.st.Save(r.Name(), attempt); err != nil {
		return nil, err
	}
	if err := a.st.SetAtomState(r.Name(), StateSuccess); err != nil {
		return nil, err
	}
	fut := NewFuture(r)
	_ = fut.Complete(Executed, attempt)
	return fut, nil
}

func (a *retryAction) ScheduleReversion(_ context.Context, r *Retry) (*Future, error) {
	if err := a.st.SetAtomState(r.Name(), StateReverting); err != nil {
		return nil, err
	}
	if err := a.st.SetProgress(r.Name(), 0); err != nil {
		return nil, err
	}
	if err := a.st.SetAtomState(r.Name(), StateReverted); err != nil {
		return nil, err
	}
	fut := NewFuture(r)
	_ = fut.Complete(Reverted, nil)
	return fut, nil
}

func (a *retryAction) OnFailure(r *Retry, failed Atom, failure *Failure) Decision {
	return r.Policy().OnFailure(a.attempts(r), failed, failure)
}

func (a *retryAction) ChangeState(r *Retry, s State) error {
	return a.st.SetAtomState(r.Name(), s)
}
