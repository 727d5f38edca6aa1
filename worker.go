package forkjoin

import (
	"runtime"
	"sync/atomic"
)

const (
	// stealAttempts bounds retries against a single victim when a steal
	// aborts on contention.
	stealAttempts = 4

	// defaultParkThreshold is the number of consecutive empty scans before a
	// worker enters the park sequence.
	defaultParkThreshold = 32
)

// workerContext is the per-worker state: the personal deque, the external
// submission mailbox, the current async stack, the victim-selection RNG, and
// the event-count slot used for parking. A pointer to each context is
// published in the scheduler's worker slice before the worker loop starts.
type workerContext struct {
	index int
	sched *Scheduler

	deque *deque
	mbox  mailbox
	ec    *eventCount

	// stack is the current async stack; owner-only. Previous stacks are
	// parked by swaps and reclaimed when their last live frame is released.
	stack *asyncStack

	rng xoroshiro128

	// gid is the worker goroutine's id, published at startup and cleared at
	// exit; the process-wide equivalent of a thread-local current-worker
	// pointer.
	gid atomic.Uint64
}

func newWorkerContext(index int, sched *Scheduler, seed uint64) *workerContext {
	return &workerContext{
		index: index,
		sched: sched,
		deque: newDeque(),
		ec:    newEventCount(1),
		rng:   newXoroshiro(seed),
	}
}

// run is the worker loop. Each iteration: drain the mailbox, pop the
// personal deque, then try stealing from a random victim; after enough
// consecutive empty scans, park on the event-count (with the mandatory
// final rescan). Exits once the scheduler is stopped and the worker's own
// deque and mailbox are empty.
func (w *workerContext) run() {
	defer w.sched.wg.Done()

	w.gid.Store(getGoroutineID())
	defer w.gid.Store(0)

	if err := w.sched.pin(w.index); err != nil {
		w.sched.logger.Warning().
			Int("worker", w.index).
			Err(err).
			Log("forkjoin: cpu pinning failed; continuing unpinned")
	}

	w.stack = acquireStack()
	defer func() {
		w.stack.park()
		w.stack = nil
	}()

	w.sched.logger.Debug().Int("worker", w.index).Log("forkjoin: worker started")
	defer func() {
		w.sched.logger.Debug().Int("worker", w.index).Log("forkjoin: worker exiting")
	}()

	emptyScans := 0
	for {
		if w.drainMailbox() {
			emptyScans = 0
			continue
		}

		if f := w.deque.pop(); f != nil {
			w.execute(f)
			emptyScans = 0
			continue
		}

		// Own deque and mailbox are empty; this is the exit point.
		if w.sched.workersMayExit() {
			return
		}

		if f := w.trySteal(); f != nil {
			w.installFreshStack()
			w.sched.stats.add(&w.sched.stats.steals, 1)
			w.execute(f)
			emptyScans = 0
			continue
		}

		emptyScans++
		if emptyScans >= w.sched.parkThreshold {
			w.park()
			emptyScans = 0
		} else {
			w.backoff(emptyScans)
		}
	}
}

// drainMailbox detaches the whole mailbox and resumes the drained frames
// oldest-first. Reports whether anything was drained.
func (w *workerContext) drainMailbox() bool {
	list := w.mbox.drain()
	if list == nil {
		return false
	}
	for list != nil {
		f := list
		list = list.mailboxNext
		f.mailboxNext = nil
		w.execute(f)
	}
	return true
}

// trySteal picks a random victim and attempts to take the top of its deque,
// retrying a bounded number of times on contention aborts. The returned
// frame has its steal count already incremented.
func (w *workerContext) trySteal() *frame {
	workers := w.sched.workers
	n := uint64(len(workers))
	if n < 2 {
		return nil
	}

	// Uniform over the other workers: draw from [0, n-1) and skip self.
	v := w.rng.uintn(n - 1)
	if v >= uint64(w.index) {
		v++
	}
	victim := workers[v]

	for attempt := 0; attempt < stealAttempts; attempt++ {
		f, res := victim.deque.steal()
		switch res {
		case stealOK:
			// The increment happens at the moment of stealing, before the
			// frame can run anywhere; the old owner can no longer pop this
			// element (the top CAS moved past it).
			f.steals.Add(1)
			return f
		case stealEmpty:
			return nil
		case stealAbort:
			w.sched.stats.add(&w.sched.stats.stealAborts, 1)
		}
	}
	return nil
}

// installFreshStack gives the worker a clean async stack before resuming a
// stolen frame. The previous stack is handed off to the bookkeeping of the
// frames still suspended on it (it is reclaimed when the last of them is
// released); a stack with no live frames is kept and rewound to its start
// in place of parking.
func (w *workerContext) installFreshStack() {
	if w.stack.live.Load() == 0 {
		// Nothing live was left behind on it; reclaim any slots that were
		// released remotely and left the sentinel raised.
		w.stack.restore(stackCheckpoint{})
		return
	}
	w.stack.park()
	w.stack = acquireStack()
	w.sched.stats.add(&w.sched.stats.stackSwaps, 1)
}

// park blocks the worker on its event-count until new work is signaled. The
// prepare/rescan/wait sequence is what makes lost wakeups impossible: any
// push that raced with the rescan bumps the generation before wait blocks.
func (w *workerContext) park() {
	w.sched.sleepers.Add(1)
	tok := w.ec.prepareWait()

	if w.anyWorkVisible() || w.sched.workersMayExit() {
		w.ec.cancelWait()
		w.sched.sleepers.Add(-1)
		return
	}

	w.sched.stats.add(&w.sched.stats.parks, 1)
	w.ec.wait(tok)
	w.sched.sleepers.Add(-1)
}

// anyWorkVisible is the pre-wait scan: own mailbox, then every other
// worker's deque.
func (w *workerContext) anyWorkVisible() bool {
	if !w.mbox.empty() || !w.deque.empty() {
		return true
	}
	for _, other := range w.sched.workers {
		if other != w && !other.deque.empty() {
			return true
		}
	}
	return false
}

// backoff burns a short, randomized amount of time between scan rounds so
// that contending thieves decorrelate.
func (w *workerContext) backoff(round int) {
	spins := 1 + int(w.rng.uintn(uint64(round*4+4)))
	for i := 0; i < spins; i++ {
		runtime.Gosched()
	}
}

// execute resumes f and keeps running frames (children, resumed parents)
// until the chain yields control back to the loop.
func (w *workerContext) execute(f *frame) {
	for f != nil {
		f = w.step(f)
	}
}

// step runs one segment of f's body and applies the resulting directive.
// Returns the next frame to run on this worker, or nil to fall back to the
// worker loop.
func (w *workerContext) step(f *frame) *frame {
	f.home = w
	f.state.store(stateRunning)

	d, err := w.invoke(f)
	if err != nil {
		return w.complete(f, err)
	}

	switch d.kind {
	case directiveFork:
		// The suspension point is recorded before the child is allocated:
		// the saved position is the address immediately following the
		// parent's activation scope.
		f.saveSuspension(w.stack)
		f.state.store(stateSuspendedFork)
		f.pending.Add(1)
		child := w.newFrame(d.child, tagFork, f)
		f.step++
		// Once pushed, the parent belongs to whoever takes it; no touching
		// it after this point.
		w.deque.push(f)
		w.sched.signalWork()
		return child

	case directiveCall:
		f.saveSuspension(w.stack)
		f.state.store(stateSuspendedCall)
		child := w.newFrame(d.child, tagCall, f)
		f.step++
		return child

	case directiveJoin:
		return w.join(f)

	case directiveReturn:
		return w.complete(f, nil)

	default:
		panic("forkjoin: task body returned an invalid directive")
	}
}

// invoke runs the current body segment with panic recovery.
func (w *workerContext) invoke(f *frame) (d Directive, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = taskError(r)
		}
	}()
	f.scope.w = w
	d = f.body(&f.scope)
	return
}

// join applies the join protocol to f.
//
// Fast path: if no fork of this frame was ever stolen and the pending count
// is back to the lone self token, every child completed inline and the body
// continues immediately. Otherwise the frame drops its self token: a zero
// result means the last child beat us to completion (continue); a positive
// result means children are outstanding, so the frame suspends and the last
// completing child inherits it.
func (w *workerContext) join(f *frame) *frame {
	if f.steals.Load() == 0 && f.pending.Load() == 1 {
		return w.passJoin(f)
	}

	f.saveSuspension(w.stack)
	f.state.store(stateSuspendedJoin)
	if f.pending.Add(-1) == 0 {
		// All children completed while we were getting here; re-arm the
		// self token and continue.
		f.pending.Store(1)
		return w.passJoin(f)
	}

	w.sched.stats.add(&w.sched.stats.suspendedJoins, 1)
	return nil
}

// passJoin consumes a completed join: surface a captured child failure, or
// advance to the next segment.
func (w *workerContext) passJoin(f *frame) *frame {
	if err := f.takeException(); err != nil {
		return w.complete(f, err)
	}
	f.step++
	return f
}

// complete finishes f, with err non-nil for abnormal completion, and applies
// the return protocol for f's tag. The result write in the body happens
// before the pending decrement in program order; the decrement's
// release/acquire pairing is what publishes it to the joining parent.
func (w *workerContext) complete(f *frame, err error) *frame {
	if f.pending.Load() != 1 {
		// The body returned (or panicked) with forked children outstanding;
		// the fork/join shape is broken and unwinding cannot be made safe.
		panic("forkjoin: task completed with outstanding forked children (fork without matching join)")
	}
	if err == nil {
		// A call child may have failed without an intervening join; a frame
		// must not complete normally while carrying an unsurfaced failure.
		err = f.takeException()
	}
	f.state.store(stateCompleted)

	parent := f.parent

	switch f.tag {
	case tagRoot:
		f.rootErr = err
		latch := f.latch
		w.destroy(f)
		w.sched.rootDone()
		close(latch)
		return nil

	case tagCall:
		if err != nil {
			w.propagate(parent, err)
		}
		w.destroy(f)
		// The call child's whole tree is done; control returns to the
		// parent wherever that happened.
		return parent

	case tagFork:
		if err != nil {
			w.propagate(parent, err)
		}
		w.destroy(f)
		if parent.pending.Add(-1) > 0 {
			return nil
		}
		return w.inherit(parent)

	default:
		panic("forkjoin: completion of frame with invalid tag")
	}
}

// inherit resumes a parent whose last outstanding child just completed on
// this worker (continuation stealing). Exactly one worker reaches here per
// join scope: the one whose decrement hit zero.
func (w *workerContext) inherit(parent *frame) *frame {
	parent.pending.Store(1)

	if err := parent.takeException(); err != nil {
		return w.complete(parent, err)
	}
	parent.step++

	if parent.home == w {
		return parent
	}

	// Rare slow path after a steal: hand the parent back to its home
	// worker, the one that last executed it.
	w.sched.stats.add(&w.sched.stats.remoteResumes, 1)
	home := parent.home
	home.mbox.push(parent)
	home.ec.notifyOne()
	return nil
}

// propagate records err as parent's failure; the first exception wins and
// later sibling failures are dropped with a (rate-limited) log entry.
func (w *workerContext) propagate(parent *frame, err error) {
	if parent.captureException(err) {
		return
	}
	w.sched.stats.add(&w.sched.stats.droppedExceptions, 1)
	w.sched.logDroppedException(w.index, err)
}

// newFrame allocates and initializes a child frame on the current stack.
func (w *workerContext) newFrame(t *Task, tag frameTag, parent *frame) *frame {
	f := w.stack.allocate()
	f.reset(t.body, tag, parent)
	w.sched.stats.add(&w.sched.stats.framesAllocated, 1)
	return f
}

// destroy releases f's storage. Owner-side strict-LIFO deallocation retracts
// the bump pointer; frames whose storage lives on a parked or foreign
// stack, or is buried under remotely released slots, go through the release
// path and are reclaimed wholesale with their stack. Root frames have no
// stack storage and release nothing.
func (w *workerContext) destroy(f *frame) {
	f.state.store(stateDestroyed)
	s := f.stack
	if s == nil {
		// Root frames are not arena-backed.
		return
	}
	if s == w.stack && s.isTop(f) {
		s.deallocate(f)
		return
	}
	s.releaseRemote()
}
