package flow

import (
	"time"

	"github.com/dshills/taskgraph-go/flow/emit"
)

// DefaultWaitTimeout bounds a single wait on in-flight futures. A wait
// that times out with nothing resolved simply runs again, so the runner
// effectively polls at this interval while work is outstanding.
const DefaultWaitTimeout = 60 * time.Second

// Options configures GraphRunner behavior. The zero value is valid.
type Options struct {
	// FlowID labels emitted events and metrics for this run. Optional.
	FlowID string

	// WaitTimeout bounds a single wait on in-flight futures. If zero,
	// DefaultWaitTimeout is used.
	WaitTimeout time.Duration

	// Emitter receives an event at every progress transition and atom
	// completion. Optional, may be nil.
	Emitter emit.Emitter

	// Metrics receives execution metrics. Optional, may be nil.
	Metrics *Metrics
}
