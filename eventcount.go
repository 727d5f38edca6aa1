package forkjoin

import (
	"sync/atomic"
)

// eventCount is a wait/notify primitive that avoids lost wakeups without
// locks. One instance per worker, used for parking idle thieves.
//
// Protocol (the caller is the would-be sleeper):
//
//  1. tok := ec.prepareWait()
//  2. re-scan every source of work (all victims, own mailbox, stop flag)
//  3. if the scan found work: ec.cancelWait(); consume the work
//  4. else: ec.wait(tok)
//
// Producers must notify AFTER publishing work. The generation counter closes
// the race: a notify that lands between steps 1 and 4 bumps the generation,
// so the wait returns immediately instead of sleeping through the wakeup.
//
// The semaphore channel may accumulate stale tokens (e.g. a cancelled wait
// leaves the notifier's token behind). Stale tokens cause spurious wakeups,
// never lost ones; the worker loop re-scans after every wakeup regardless.
type eventCount struct {
	_       [0]func() // prevent copying
	gen     atomic.Uint64
	waiters atomic.Int32
	sema    chan struct{}
}

// waitToken captures the generation observed by prepareWait.
type waitToken struct {
	gen uint64
}

func newEventCount(capacity int) *eventCount {
	if capacity < 1 {
		capacity = 1
	}
	return &eventCount{sema: make(chan struct{}, capacity)}
}

// prepareWait registers the caller as a prospective sleeper and captures the
// current generation. Must be paired with exactly one cancelWait or wait.
func (ec *eventCount) prepareWait() waitToken {
	ec.waiters.Add(1)
	return waitToken{gen: ec.gen.Load()}
}

// cancelWait abandons a prepared wait, after a pre-wait scan found work.
func (ec *eventCount) cancelWait() {
	ec.waiters.Add(-1)
}

// wait blocks until the generation moves past the token. Returns immediately
// if a notify already intervened.
func (ec *eventCount) wait(tok waitToken) {
	if ec.gen.Load() != tok.gen {
		ec.waiters.Add(-1)
		return
	}
	<-ec.sema
	ec.waiters.Add(-1)
}

// notifyOne increments the generation and wakes at most one blocked waiter.
func (ec *eventCount) notifyOne() {
	ec.gen.Add(1)
	if ec.waiters.Load() > 0 {
		select {
		case ec.sema <- struct{}{}:
		default:
			// Channel full: enough tokens are already in flight.
		}
	}
}

// notifyAll increments the generation and wakes every blocked waiter.
func (ec *eventCount) notifyAll() {
	ec.gen.Add(1)
	for n := ec.waiters.Load(); n > 0; n-- {
		select {
		case ec.sema <- struct{}{}:
		default:
			return
		}
	}
}

// parked reports whether any waiter is blocked (or about to block). Used by
// the scheduler's notify scan to skip workers that are busy anyway.
func (ec *eventCount) parked() bool {
	return ec.waiters.Load() > 0
}
