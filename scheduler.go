package forkjoin

import (
	"sync"
	"sync/atomic"
	"time"
)

// schedState is the scheduler lifecycle.
//
//	schedCreated (0) → schedStarted (1)    [Start]
//	schedStarted (1) → schedStopping (2)   [Stop: no new submissions]
//	schedStopping (2) → schedStopped (3)   [Stop: outstanding roots drained]
type schedState uint32

const (
	schedCreated schedState = iota
	schedStarted
	schedStopping
	schedStopped
)

// Scheduler is the public handle to a worker pool. Construct with [New],
// then [Scheduler.Start] it; submit roots with [Scheduler.Submit] or
// [Scheduler.SyncWait]; [Scheduler.Stop] shuts the pool down gracefully.
type Scheduler struct {
	_ [0]func() // prevent copying

	workers []*workerContext
	wg      sync.WaitGroup

	state atomic.Uint32

	// rootsWg tracks outstanding root frames; Stop blocks on it until every
	// submitted root has completed.
	rootsWg sync.WaitGroup

	// rr is the round-robin cursor for external submissions.
	rr atomic.Uint64

	// sleepers counts workers inside the park sequence; it gates the notify
	// scan off the fork hot path.
	sleepers atomic.Int32

	stopOnce sync.Once
	stopErr  error

	logger        schedLogger
	stats         stats
	pinStrategy   PinStrategy
	parkThreshold int
}

// New creates a scheduler with the given options. The pool is not running
// until Start is called.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		logger:        newSchedLogger(cfg.logger),
		pinStrategy:   cfg.pinStrategy,
		parkThreshold: cfg.parkThreshold,
	}
	s.stats.enabled = cfg.metrics

	seed := uint64(time.Now().UnixNano())
	s.workers = make([]*workerContext, cfg.workers)
	for i := range s.workers {
		s.workers[i] = newWorkerContext(i, s, splitmix64(&seed))
	}
	return s, nil
}

// Workers returns the size of the pool.
func (s *Scheduler) Workers() int {
	return len(s.workers)
}

// Start spawns the worker goroutines. It returns ErrAlreadyStarted if the
// pool is running and ErrStopped if it was already stopped; a scheduler is
// not restartable.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(uint32(schedCreated), uint32(schedStarted)) {
		if schedState(s.state.Load()) == schedStarted {
			return ErrAlreadyStarted
		}
		return ErrStopped
	}

	s.wg.Add(len(s.workers))
	for _, w := range s.workers {
		go w.run()
	}

	s.logger.base().Info().
		Int("workers", len(s.workers)).
		Str("pinning", s.pinStrategy.String()).
		Log("forkjoin: scheduler started")
	return nil
}

// Stop gracefully shuts the pool down: it refuses new submissions, blocks
// until every outstanding root has completed, then wakes and joins all
// workers. Safe to call at most once; later calls return ErrStopped.
func (s *Scheduler) Stop() error {
	var first bool
	s.stopOnce.Do(func() {
		first = true
		s.stopErr = s.stopImpl()
	})
	if !first {
		return ErrStopped
	}
	return s.stopErr
}

func (s *Scheduler) stopImpl() error {
	if !s.state.CompareAndSwap(uint32(schedStarted), uint32(schedStopping)) {
		if schedState(s.state.Load()) == schedCreated {
			// Never started: nothing to join.
			s.state.Store(uint32(schedStopped))
			return nil
		}
		return ErrStopped
	}

	// Block until outstanding roots drain; workers make progress on their
	// own. Submissions racing with the transition either land before it (and
	// are counted here) or observe it in newRoot's re-check and roll back.
	s.rootsWg.Wait()

	s.state.Store(uint32(schedStopped))
	for _, w := range s.workers {
		w.ec.notifyAll()
	}
	s.wg.Wait()

	s.logger.base().Info().Log("forkjoin: scheduler stopped")
	return nil
}

// workersMayExit reports whether workers should exit once their own deque
// and mailbox are empty.
func (s *Scheduler) workersMayExit() bool {
	return schedState(s.state.Load()) == schedStopped
}

// accepting reports whether new roots may be submitted.
func (s *Scheduler) accepting() error {
	switch schedState(s.state.Load()) {
	case schedStarted:
		return nil
	case schedCreated:
		return ErrNotStarted
	default:
		return ErrStopped
	}
}

// Submit enqueues t as a root task and returns without waiting for it.
// Completion is observable only through the task's own result slots; use
// SyncWait when the caller needs to block. Safe to call from any goroutine,
// including task bodies on workers.
func (s *Scheduler) Submit(t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	root, err := s.newRoot(t)
	if err != nil {
		return err
	}
	s.submitRoot(root)
	return nil
}

// SyncWait submits t as a root task and blocks until it completes,
// returning the failure captured from the task tree, if any. Safe to call
// from any non-worker goroutine; calling it from inside a task body would
// deadlock the worker and is the caller's bug.
func (s *Scheduler) SyncWait(t *Task) error {
	if t == nil {
		return ErrNilTask
	}
	root, err := s.newRoot(t)
	if err != nil {
		return err
	}
	latch := root.latch
	s.submitRoot(root)
	<-latch
	return root.rootErr
}

// Wait submits the root task produced by build, giving it a result slot,
// blocks until completion, and returns the result. It is the generic
// convenience form of [Scheduler.SyncWait]:
//
//	n, err := forkjoin.Wait(sched, func(res *int64) *forkjoin.Task {
//		return fib(res, 30)
//	})
func Wait[R any](s *Scheduler, build func(res *R) *Task) (R, error) {
	var res R
	err := s.SyncWait(build(&res))
	return res, err
}

// newRoot builds a root frame for t. Root frames are not arena-backed: the
// submitter may be an external goroutine with no worker stack, and the
// latch must outlive the frame's destruction.
func (s *Scheduler) newRoot(t *Task) (*frame, error) {
	if err := s.accepting(); err != nil {
		return nil, err
	}
	root := &frame{}
	root.reset(t.body, tagRoot, nil)
	root.latch = make(chan struct{})
	s.rootsWg.Add(1)
	// Re-check after the increment: either Stop's drain wait observes this
	// root, or this load observes the shutdown transition; the sequentially
	// consistent total order rules out both missing.
	if schedState(s.state.Load()) != schedStarted {
		s.rootsWg.Done()
		return nil, ErrStopped
	}
	s.stats.add(&s.stats.submitted, 1)
	return root, nil
}

// submitRoot places a root frame with a worker. A submission from a worker
// goroutine of this pool goes straight onto that worker's deque; anything
// else round-robins onto a worker's external mailbox and wakes it.
func (s *Scheduler) submitRoot(root *frame) {
	if w := s.currentWorker(); w != nil {
		w.deque.push(root)
		s.signalWork()
		return
	}

	target := s.workers[s.rr.Add(1)%uint64(len(s.workers))]
	target.mbox.push(root)
	target.ec.notifyOne()
}

// rootDone is called by the worker that completes a root frame, before the
// latch is closed.
func (s *Scheduler) rootDone() {
	s.rootsWg.Done()
}

// currentWorker resolves the calling goroutine to one of this pool's
// workers, or nil. The goroutine id comparison is the process-wide
// equivalent of a thread-local current-worker pointer.
func (s *Scheduler) currentWorker() *workerContext {
	gid := getGoroutineID()
	for _, w := range s.workers {
		if w.gid.Load() == gid {
			return w
		}
	}
	return nil
}

// signalWork wakes one parked thief, if any. Gated by the sleeper count so
// the fork hot path pays a single atomic load when everyone is busy.
func (s *Scheduler) signalWork() {
	if s.sleepers.Load() == 0 {
		return
	}
	for _, w := range s.workers {
		if w.ec.parked() {
			w.ec.notifyOne()
			return
		}
	}
}

// pin applies the configured CPU binding to the calling worker goroutine.
func (s *Scheduler) pin(index int) error {
	return pinWorker(s.pinStrategy, index, len(s.workers))
}

// Metrics returns a snapshot of the scheduler's counters. Zero unless
// metrics collection is enabled (see [WithMetrics]).
func (s *Scheduler) Metrics() Metrics {
	return s.stats.snapshot()
}
