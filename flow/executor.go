package flow

import (
	"context"
	"fmt"
	"sync"
)

// Executor turns a task into an asynchronously resolving future. True
// parallelism lives here; the runner itself stays single-threaded and
// only waits on the returned futures.
//
// Every submitted action must resolve its future eventually, even when
// the context is cancelled, so the runner can always drain in-flight
// work.
type Executor interface {
	// ExecuteTask runs the task's work function and resolves the future
	// with an Executed event.
	ExecuteTask(ctx context.Context, t *Task) *Future

	// RevertTask runs the task's compensation against its prior result
	// and resolves the future with a Reverted event.
	RevertTask(ctx context.Context, t *Task, result any) *Future
}

// runExecute performs one task execution and resolves fut.
func runExecute(ctx context.Context, t *Task, fut *Future) {
	result, err := t.Execute(ctx)
	if err != nil {
		_ = fut.Complete(Executed, NewFailure(t, Executed, err))
		return
	}
	_ = fut.Complete(Executed, result)
}

// runRevert performs one task reversion and resolves fut. The prior
// result is input to the compensation, not the reversion's own outcome,
// so a clean reversion resolves with nil.
func runRevert(ctx context.Context, t *Task, result any, fut *Future) {
	if err := t.Revert(ctx, result); err != nil {
		_ = fut.Complete(Reverted, NewFailure(t, Reverted, err))
		return
	}
	_ = fut.Complete(Reverted, nil)
}

// SerialExecutor runs every task inline on the calling goroutine. Futures
// it returns are already resolved. Useful for tests and for flows whose
// tasks are cheap.
type SerialExecutor struct{}

// NewSerialExecutor creates a serial executor.
func NewSerialExecutor() *SerialExecutor { return &SerialExecutor{} }

// ExecuteTask implements Executor.
func (e *SerialExecutor) ExecuteTask(ctx context.Context, t *Task) *Future {
	fut := NewFuture(t)
	runExecute(ctx, t, fut)
	return fut
}

// RevertTask implements Executor.
func (e *SerialExecutor) RevertTask(ctx context.Context, t *Task, result any) *Future {
	fut := NewFuture(t)
	runRevert(ctx, t, result, fut)
	return fut
}

// ParallelExecutor runs tasks on a bounded pool of worker goroutines.
//
// Start must be called before tasks are submitted and Stop after the run
// has drained; Stop waits for the workers to exit. Submitting after Stop
// panics, as sends on the closed queue would.
type ParallelExecutor struct {
	queue   chan func()
	wg      sync.WaitGroup
	workers int

	mu      sync.Mutex
	started bool
}

// NewParallelExecutor creates a pool with the given number of workers.
// workers values below 1 are treated as 1.
func NewParallelExecutor(workers int) *ParallelExecutor {
	if workers < 1 {
		workers = 1
	}
	return &ParallelExecutor{
		queue:   make(chan func(), workers*4),
		workers: workers,
	}
}

// Start launches the worker goroutines. Starting twice is a no-op.
func (e *ParallelExecutor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for job := range e.queue {
				job()
			}
		}()
	}
}

// Stop closes the queue and waits for all workers to finish their current
// jobs. Pending jobs still run; their futures resolve before Stop
// returns.
func (e *ParallelExecutor) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()

	close(e.queue)
	e.wg.Wait()
}

// submit queues a job, resolving fut with a cancellation failure instead
// of running it if the context is already done.
func (e *ParallelExecutor) submit(ctx context.Context, t *Task, event Event, fut *Future, job func()) {
	e.queue <- func() {
		if err := ctx.Err(); err != nil {
			_ = fut.Complete(event, NewFailure(t, event, fmt.Errorf("task %q cancelled: %w", t.Name(), err)))
			return
		}
		job()
	}
}

// ExecuteTask implements Executor.
func (e *ParallelExecutor) ExecuteTask(ctx context.Context, t *Task) *Future {
	fut := NewFuture(t)
	e.submit(ctx, t, Executed, fut, func() { runExecute(ctx, t, fut) })
	return fut
}

// RevertTask implements Executor.
func (e *ParallelExecutor) RevertTask(ctx context.Context, t *Task, result any) *Future {
	fut := NewFuture(t)
	e.submit(ctx, t, Reverted, fut, func() { runRevert(ctx, t, result, fut) })
	return fut
}
