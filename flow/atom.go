package flow

import "context"

// Kind distinguishes the two schedulable atom variants.
type Kind string

const (
	KindTask  Kind = "task"
	KindRetry Kind = "retry"
)

// Atom is a schedulable unit in the graph: either a *Task (plain work) or
// a *Retry (retry controller). The set is closed - the runner dispatches
// on the concrete type and treats anything else as a graph-construction
// bug.
type Atom interface {
	// Name returns the atom's unique identity within the graph.
	Name() string

	// Kind reports which variant this atom is.
	Kind() Kind
}

// RunFunc is the work performed when a task executes. The returned value
// is persisted as the task's result and handed to RevertFunc if the flow
// later reverts.
type RunFunc func(ctx context.Context) (any, error)

// RevertFunc undoes a task's work. result is the value the task's RunFunc
// produced, or the *Failure captured if execution failed.
type RevertFunc func(ctx context.Context, result any) error

// Task is a plain unit of work with optional compensation.
//
// Example:
//
//	task := flow.NewTask("provision",
//	    func(ctx context.Context) (any, error) {
//	        return createServer(ctx)
//	    },
//	    func(ctx context.Context, result any) error {
//	        return destroyServer(ctx, result)
//	    })
type Task struct {
	name   string
	run    RunFunc
	revert RevertFunc
}

// NewTask creates a task. run may be nil for a no-op task; revert may be
// nil when the task has nothing to compensate.
func NewTask(name string, run RunFunc, revert RevertFunc) *Task {
	return &Task{name: name, run: run, revert: revert}
}

// Name implements Atom.
func (t *Task) Name() string { return t.name }

// Kind implements Atom.
func (t *Task) Kind() Kind { return KindTask }

// Execute runs the task's work function.
func (t *Task) Execute(ctx context.Context) (any, error) {
	if t.run == nil {
		return nil, nil
	}
	return t.run(ctx)
}

// Revert runs the task's compensation function against the prior result.
func (t *Task) Revert(ctx context.Context, result any) error {
	if t.revert == nil {
		return nil
	}
	return t.revert(ctx, result)
}

// Retry is a retry controller guarding a subgraph of atoms. When an atom
// in its scope fails, the controller's policy decides whether the subflow
// is retried, the failure escalates to an enclosing controller, or the
// whole flow reverts.
type Retry struct {
	name   string
	policy RetryPolicy
}

// NewRetry creates a retry controller. A nil policy behaves like
// AlwaysRevert.
func NewRetry(name string, policy RetryPolicy) *Retry {
	return &Retry{name: name, policy: policy}
}

// Name implements Atom.
func (r *Retry) Name() string { return r.name }

// Kind implements Atom.
func (r *Retry) Kind() Kind { return KindRetry }

// Policy returns the controller's failure policy, never nil.
func (r *Retry) Policy() RetryPolicy {
	if r.policy == nil {
		return AlwaysRevert
	}
	return r.policy
}
