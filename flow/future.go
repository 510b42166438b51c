package flow

import (
	"errors"
	"sync"
	"time"
)

// ErrAlreadyResolved is returned by Future.Complete when the future has
// resolved before.
var ErrAlreadyResolved = errors.New("future already resolved")

// Future is the handle for one scheduled action. It resolves exactly once
// to an (atom, event, result) triple, where result is either the action's
// value or a *Failure. Futures are created by executors and actions, owned
// by the runner until resolved, and discarded after.
type Future struct {
	atom Atom
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	event     Event
	result    any
	callbacks []func(*Future)
}

// NewFuture creates an unresolved future for the given atom.
func NewFuture(atom Atom) *Future {
	return &Future{atom: atom, done: make(chan struct{})}
}

// Atom returns the atom this future was scheduled for.
func (f *Future) Atom() Atom { return f.atom }

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Resolved reports whether the future has resolved.
func (f *Future) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Complete resolves the future. A second call is a caller bug and fails
// with ErrAlreadyResolved without changing the stored outcome.
func (f *Future) Complete(event Event, result any) error {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return ErrAlreadyResolved
	}
	f.resolved = true
	f.event = event
	f.result = result
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	close(f.done)
	for _, cb := range callbacks {
		cb(f)
	}
	return nil
}

// Outcome blocks until the future resolves and returns its event and
// result. The result may be a *Failure.
func (f *Future) Outcome() (Event, any) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.event, f.result
}

// onDone registers a callback invoked when the future resolves. If the
// future has already resolved the callback runs immediately on the
// calling goroutine.
func (f *Future) onDone(cb func(*Future)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb(f)
}

// WaitForAny blocks until at least one of the given futures resolves or
// the timeout elapses, then partitions the input into resolved and
// still-pending futures. On timeout with nothing resolved, done is empty
// and the caller is expected to simply wait again.
func WaitForAny(futures []*Future, timeout time.Duration) (done, notDone []*Future) {
	if len(futures) == 0 {
		return nil, nil
	}

	// Buffered to len(futures) so resolution callbacks never block, even
	// for waits that have already returned.
	wake := make(chan *Future, len(futures))
	for _, f := range futures {
		f.onDone(func(f *Future) { wake <- f })
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wake:
	case <-timer.C:
	}

	for _, f := range futures {
		if f.Resolved() {
			done = append(done, f)
		} else {
			notDone = append(notDone, f)
		}
	}
	return done, notDone
}
