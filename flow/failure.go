package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Failure is a captured error carried as a result value. Futures resolve
// with a *Failure instead of a plain value when the scheduled action
// errored, which lets the runner keep processing a batch while recording
// what went wrong.
type Failure struct {
	// AtomName identifies the atom whose action failed, when known.
	AtomName string

	// Event is the action kind that produced the failure (Executed or
	// Reverted), when known.
	Event Event

	// Err is the underlying error.
	Err error
}

// NewFailure captures err as the failure of the given atom and event.
func NewFailure(atom Atom, event Event, err error) *Failure {
	name := ""
	if atom != nil {
		name = atom.Name()
	}
	return &Failure{AtomName: name, Event: event, Err: err}
}

// CaptureFailure captures an error that is not tied to a single atom's
// action, such as a scheduling or analysis error.
func CaptureFailure(err error) *Failure {
	return &Failure{Err: err}
}

// RestoreFailure rebuilds a failure from its persisted parts. Stores use
// it when rehydrating atom results; the original error chain is reduced
// to its message.
func RestoreFailure(atomName string, event Event, msg string) *Failure {
	return &Failure{AtomName: atomName, Event: event, Err: errors.New(msg)}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.AtomName != "" {
		return fmt.Sprintf("atom %q failed: %v", f.AtomName, f.Err)
	}
	return f.Err.Error()
}

// Unwrap returns the captured error for errors.Is/As traversal.
func (f *Failure) Unwrap() error { return f.Err }

// FailureGroup aggregates the failures accumulated over a run. It is
// raised once, after all in-flight work has drained.
type FailureGroup struct {
	Failures []*Failure
}

// Error implements the error interface.
func (g *FailureGroup) Error() string {
	msgs := make([]string, len(g.Failures))
	for i, f := range g.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%d failures: %s", len(g.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every member failure to errors.Is/As.
func (g *FailureGroup) Unwrap() []error {
	errs := make([]error, len(g.Failures))
	for i, f := range g.Failures {
		errs[i] = f
	}
	return errs
}

// CombineFailures converts a batch of failures into a single error: nil
// for an empty batch, the failure itself for exactly one, and a
// *FailureGroup preserving all of them otherwise.
func CombineFailures(failures []*Failure) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return &FailureGroup{Failures: failures}
	}
}
