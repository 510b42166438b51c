package flow

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/dshills/taskgraph-go/flow/emit"
)

// GraphRunner drives a dependency graph of atoms to a terminal outcome.
//
// The runner owns the control loop only: it pulls ready atoms from the
// Analyzer, turns them into futures through the task and retry actions,
// waits on the futures, feeds completions back, and on failure walks the
// retry-scope hierarchy. Graph topology, persistence and the mechanics of
// running user work all live in the collaborators.
//
// A run is consumed as a sequence of progress states:
//
//	RESUMING -> SCHEDULING -> (WAITING -> ANALYZING -> [SCHEDULING])* ->
//	    SUSPENDED | SUCCESS | REVERTED
//
// The runner is single-threaded and cooperative: it advances only when
// the caller pulls the next state, and blocks only inside the wait step.
// Parallelism comes from the executor behind the task action.
//
// Example:
//
//	st := store.NewMemoryStore()
//	ex := flow.NewSerialExecutor()
//	runner := flow.NewGraphRunner(
//	    flow.NewGraphAnalyzer(g, st), st,
//	    flow.NewTaskAction(st, ex), flow.NewRetryAction(st),
//	    flow.Options{FlowID: "deploy-7"})
//
//	for state, err := range runner.RunIter(ctx) {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Println(state)
//	}
type GraphRunner struct {
	analyzer Analyzer
	storage  Storage
	tasks    TaskAction
	retries  RetryAction
	opts     Options
}

// NewGraphRunner creates a runner over the given collaborators.
func NewGraphRunner(analyzer Analyzer, storage Storage, tasks TaskAction, retries RetryAction, opts Options) *GraphRunner {
	return &GraphRunner{
		analyzer: analyzer,
		storage:  storage,
		tasks:    tasks,
		retries:  retries,
		opts:     opts,
	}
}

// isRunning reports whether the flow still permits scheduling new work.
func (g *GraphRunner) isRunning() bool {
	return g.storage.FlowState() == StateRunning
}

// RunIter returns the run as a blocking iterator of progress states.
//
// Progress states arrive with a nil error. If failures accumulate, they
// surface as a single error - the failure itself for one, a *FailureGroup
// for several - yielded once after every in-flight future has resolved,
// and no terminal state follows. A clean run ends with exactly one of
// StateSuspended, StateSuccess or StateReverted.
//
// Once futures are in flight the runner always waits for all of them,
// even after the flow state leaves StateRunning; suspension only stops
// new work from being scheduled. Internal-consistency violations (an
// unknown atom kind or intention, indicating a graph-construction bug)
// panic rather than flow through the failure path.
func (g *GraphRunner) RunIter(ctx context.Context) iter.Seq2[State, error] {
	timeout := g.opts.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	return func(yield func(State, error) bool) {
		if !g.yieldState(yield, StateResuming) {
			return
		}
		next, err := g.prepareForResume()
		if err != nil {
			yield("", err)
			return
		}
		ready, err := g.analyzer.NextNodes(nil)
		if err != nil {
			yield("", err)
			return
		}
		addAtoms(next, ready)

		if !g.yieldState(yield, StateScheduling) {
			return
		}
		var notDone []*Future
		var failures []*Failure
		if g.isRunning() {
			notDone, failures = g.schedule(ctx, next)
		}
		g.opts.Metrics.setInflight(len(notDone))

		// From here on every in-flight future is waited for, even if the
		// flow is suspended mid-run: started work cannot be preempted,
		// only new work withheld.
		for len(notDone) > 0 {
			if !g.yieldState(yield, StateWaiting) {
				return
			}
			waitStart := time.Now()
			done, pending := WaitForAny(notDone, timeout)
			g.opts.Metrics.observeWait(time.Since(waitStart))
			notDone = pending
			g.opts.Metrics.setInflight(len(notDone))

			if !g.yieldState(yield, StateAnalyzing) {
				return
			}
			next = make(map[string]Atom)
			for _, fut := range done {
				more, futFailures := g.analyze(fut)
				failures = append(failures, futFailures...)
				addAtoms(next, more)
			}

			if len(next) > 0 && len(failures) == 0 && g.isRunning() {
				if !g.yieldState(yield, StateScheduling) {
					return
				}
				// Recheck: the flow may have been suspended between the
				// yield and now.
				if g.isRunning() {
					more, moreFailures := g.schedule(ctx, next)
					notDone = append(notDone, more...)
					failures = append(failures, moreFailures...)
					g.opts.Metrics.setInflight(len(notDone))
				}
			}
		}

		if len(failures) > 0 {
			yield("", CombineFailures(failures))
			return
		}
		ready, err = g.analyzer.NextNodes(nil)
		if err != nil {
			yield("", err)
			return
		}
		switch {
		case len(ready) > 0:
			g.yieldState(yield, StateSuspended)
		case g.analyzer.IsSuccess():
			g.yieldState(yield, StateSuccess)
		default:
			g.yieldState(yield, StateReverted)
		}
	}
}

// yieldState emits the progress event and forwards the state to the
// caller.
func (g *GraphRunner) yieldState(yield func(State, error) bool, s State) bool {
	g.emit(s, "", "progress", nil)
	return yield(s, nil)
}

// analyze processes one resolved future: persists its outcome, escalates
// execution failures, and collects newly ready successors.
func (g *GraphRunner) analyze(fut *Future) ([]Atom, []*Failure) {
	var failures []*Failure
	atom := fut.Atom()
	event, result := fut.Outcome()

	if t, ok := atom.(*Task); ok {
		if err := g.completeTask(t, event, result); err != nil {
			return nil, append(failures, CaptureFailure(err))
		}
	}
	if f, ok := result.(*Failure); ok {
		g.opts.Metrics.recordFailure(event)
		g.emit(StateAnalyzing, atom.Name(), "atom failed", map[string]any{
			"event": string(event),
			"error": f.Error(),
		})
		if event == Executed {
			if err := g.processAtomFailure(atom, f); err != nil {
				return nil, append(failures, CaptureFailure(err))
			}
		} else {
			// Reversion failures never re-enter retry policy; they are
			// terminal for this run.
			failures = append(failures, f)
		}
	} else {
		g.emit(StateAnalyzing, atom.Name(), "atom completed", map[string]any{"event": string(event)})
	}

	more, err := g.analyzer.NextNodes(atom)
	if err != nil {
		return nil, append(failures, CaptureFailure(err))
	}
	return more, failures
}

// schedule turns a batch of ready atoms into futures. The first atom that
// fails to schedule halts the batch: its failure is captured and the rest
// of the batch is abandoned, but futures already created are returned so
// the caller waits on them.
func (g *GraphRunner) schedule(ctx context.Context, atoms map[string]Atom) ([]*Future, []*Failure) {
	var futures []*Future
	for _, atom := range atoms {
		fut, err := g.scheduleAtom(ctx, atom)
		if err != nil {
			return futures, []*Failure{CaptureFailure(err)}
		}
		futures = append(futures, fut)
	}
	return futures, nil
}

// scheduleAtom dispatches one atom to the action matching its kind and
// stored intention. Unknown kinds and intentions are graph-construction
// bugs and panic.
func (g *GraphRunner) scheduleAtom(ctx context.Context, atom Atom) (*Future, error) {
	switch n := atom.(type) {
	case *Task:
		return g.scheduleTask(ctx, n)
	case *Retry:
		return g.scheduleRetry(ctx, n)
	default:
		panic(fmt.Sprintf("flow: unknown atom kind %T for %q", atom, atom.Name()))
	}
}

func (g *GraphRunner) scheduleTask(ctx context.Context, t *Task) (*Future, error) {
	intention := g.storage.Intention(t.Name())
	switch intention {
	case IntentionExecute:
		g.opts.Metrics.recordScheduled(KindTask, intention)
		return g.tasks.ScheduleExecution(ctx, t)
	case IntentionRevert:
		g.opts.Metrics.recordScheduled(KindTask, intention)
		return g.tasks.ScheduleReversion(ctx, t)
	default:
		panic(fmt.Sprintf("flow: unknown intention %q for task %q", intention, t.Name()))
	}
}

func (g *GraphRunner) scheduleRetry(ctx context.Context, r *Retry) (*Future, error) {
	intention := g.storage.Intention(r.Name())
	switch intention {
	case IntentionExecute:
		g.opts.Metrics.recordScheduled(KindRetry, intention)
		return g.retries.ScheduleExecution(ctx, r)
	case IntentionRevert:
		g.opts.Metrics.recordScheduled(KindRetry, intention)
		return g.retries.ScheduleReversion(ctx, r)
	case IntentionRetry:
		g.opts.Metrics.recordScheduled(KindRetry, intention)
		g.opts.Metrics.recordRetry()
		if err := g.retries.ChangeState(r, StateRetrying); err != nil {
			return nil, err
		}
		// Re-arm the guarded subflow and consume the RETRY intention:
		// the controller returns to EXECUTE so this pass schedules it
		// exactly once.
		if err := g.retrySubflow(r); err != nil {
			return nil, err
		}
		return g.retries.ScheduleExecution(ctx, r)
	default:
		panic(fmt.Sprintf("flow: unknown intention %q for retry %q", intention, r.Name()))
	}
}

// completeTask persists a task's resolved future through the task action.
// Retry controllers have no completion path: their stored state was
// already written at scheduling time.
func (g *GraphRunner) completeTask(t *Task, event Event, result any) error {
	if event == Executed {
		return g.tasks.CompleteExecution(t, result)
	}
	return g.tasks.CompleteReversion(t, result)
}

// processAtomFailure walks the retry-scope hierarchy for a failed atom
// and records the chosen response as intentions. Recursion is bounded by
// scope nesting depth.
func (g *GraphRunner) processAtomFailure(atom Atom, failure *Failure) error {
	retry := g.analyzer.FindRetry(atom)
	if retry == nil {
		return g.revertAll()
	}
	switch decision := g.retries.OnFailure(retry, atom, failure); decision {
	case DecideRetry:
		if err := g.storage.SetIntention(retry.Name(), IntentionRetry); err != nil {
			return err
		}
		for _, node := range g.analyzer.Subgraph(retry) {
			if err := g.storage.SetIntention(node.Name(), IntentionRevert); err != nil {
				return err
			}
		}
		return nil
	case DecideRevert:
		// Escalate one scope up, treating the controller as the failed
		// atom.
		return g.processAtomFailure(retry, failure)
	case DecideRevertAll:
		return g.revertAll()
	default:
		panic(fmt.Sprintf("flow: unknown retry decision %q from %q", decision, retry.Name()))
	}
}

// revertAll marks every atom in the graph for reversion.
func (g *GraphRunner) revertAll() error {
	for _, node := range g.analyzer.AllNodes() {
		if err := g.storage.SetIntention(node.Name(), IntentionRevert); err != nil {
			return err
		}
	}
	return nil
}

// prepareForResume replays the consequences of a prior, interrupted run:
// stored failures are escalated, half-retried controllers are re-armed,
// and atoms that were mid-flight are collected for rescheduling.
func (g *GraphRunner) prepareForResume() (map[string]Atom, error) {
	for _, node := range g.analyzer.AllNodes() {
		if g.analyzer.StateOf(node) == StateFailure {
			if err := g.processAtomFailure(node, g.lastFailure(node)); err != nil {
				return nil, err
			}
		}
	}
	for _, retry := range g.analyzer.RetriesIn(StateRetrying) {
		if err := g.retrySubflow(retry); err != nil {
			return nil, err
		}
	}
	next := make(map[string]Atom)
	for _, node := range g.analyzer.AllNodes() {
		switch g.analyzer.StateOf(node) {
		case StateRunning, StateReverting:
			next[node.Name()] = node
		}
	}
	return next, nil
}

// lastFailure rebuilds the failure recorded for an atom. A stored result
// that is not a failure means the state record and result record have
// drifted; the atom is still treated as failed.
func (g *GraphRunner) lastFailure(atom Atom) *Failure {
	if f, ok := g.storage.Result(atom.Name()).(*Failure); ok {
		return f
	}
	return NewFailure(atom, Executed, fmt.Errorf("atom %q in FAILURE state with no recorded failure", atom.Name()))
}

// retrySubflow re-arms a retry controller: its intention returns to
// EXECUTE and every guarded atom is reset to PENDING/EXECUTE.
func (g *GraphRunner) retrySubflow(retry *Retry) error {
	if err := g.storage.SetIntention(retry.Name(), IntentionExecute); err != nil {
		return err
	}
	return g.resetAtoms(g.analyzer.Subgraph(retry), IntentionExecute)
}

// resetAtoms returns atoms to PENDING with the given intention. Progress
// is zeroed: a task's completion fraction and a controller's attempt
// count alike.
func (g *GraphRunner) resetAtoms(atoms []Atom, intention Intention) error {
	for _, atom := range atoms {
		switch n := atom.(type) {
		case *Task:
			if err := g.tasks.ChangeState(n, StatePending, 0); err != nil {
				return err
			}
		case *Retry:
			if err := g.retries.ChangeState(n, StatePending); err != nil {
				return err
			}
			// A controller reset to PENDING starts over with a full
			// retry budget.
			if err := g.storage.SetProgress(n.Name(), 0); err != nil {
				return err
			}
		default:
			panic(fmt.Sprintf("flow: unknown atom kind %T for %q", atom, atom.Name()))
		}
		if err := g.storage.SetIntention(atom.Name(), intention); err != nil {
			return err
		}
	}
	return nil
}

// ResetAll returns every atom in the graph to PENDING/EXECUTE.
func (g *GraphRunner) ResetAll() error {
	return g.resetAtoms(g.analyzer.AllNodes(), IntentionExecute)
}

// emit forwards an event to the configured emitter, if any.
func (g *GraphRunner) emit(state State, atomID, msg string, meta map[string]any) {
	if g.opts.Emitter == nil {
		return
	}
	g.opts.Emitter.Emit(emit.Event{
		FlowID: g.opts.FlowID,
		State:  string(state),
		AtomID: atomID,
		Msg:    msg,
		Meta:   meta,
	})
}

// addAtoms merges atoms into the set keyed by name.
func addAtoms(set map[string]Atom, atoms []Atom) {
	for _, a := range atoms {
		set[a.Name()] = a
	}
}
