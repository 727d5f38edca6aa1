package forkjoin

import (
	"sync/atomic"
)

// stats is the internal counter set. All counters are monotonic and updated
// with relaxed semantics; the snapshot is not a consistent cut.
type stats struct {
	enabled bool

	submitted         atomic.Uint64
	framesAllocated   atomic.Uint64
	steals            atomic.Uint64
	stealAborts       atomic.Uint64
	parks             atomic.Uint64
	stackSwaps        atomic.Uint64
	suspendedJoins    atomic.Uint64
	remoteResumes     atomic.Uint64
	droppedExceptions atomic.Uint64
}

// add increments c when collection is enabled.
func (s *stats) add(c *atomic.Uint64, n uint64) {
	if s.enabled {
		c.Add(n)
	}
}

func (s *stats) snapshot() Metrics {
	return Metrics{
		Submitted:         s.submitted.Load(),
		FramesAllocated:   s.framesAllocated.Load(),
		Steals:            s.steals.Load(),
		StealAborts:       s.stealAborts.Load(),
		Parks:             s.parks.Load(),
		StackSwaps:        s.stackSwaps.Load(),
		SuspendedJoins:    s.suspendedJoins.Load(),
		RemoteResumes:     s.remoteResumes.Load(),
		DroppedExceptions: s.droppedExceptions.Load(),
	}
}

// Metrics is a point-in-time snapshot of scheduler counters, taken with
// [Scheduler.Metrics].
type Metrics struct {
	// Submitted counts root submissions (Submit and SyncWait).
	Submitted uint64
	// FramesAllocated counts child frames allocated from async stacks.
	FramesAllocated uint64
	// Steals counts successful steals.
	Steals uint64
	// StealAborts counts steal attempts that lost a race and retried.
	StealAborts uint64
	// Parks counts workers blocking on their event-count.
	Parks uint64
	// StackSwaps counts fresh async stacks installed before resuming stolen
	// frames.
	StackSwaps uint64
	// SuspendedJoins counts joins that had to suspend on outstanding
	// children (the continuation-stealing slow path).
	SuspendedJoins uint64
	// RemoteResumes counts suspended parents handed back to their home
	// worker through its mailbox.
	RemoteResumes uint64
	// DroppedExceptions counts sibling failures dropped because another
	// failure was captured first.
	DroppedExceptions uint64
}
