// Package forkjoin provides a user-space fork/join task runtime for
// fine-grained structured parallelism, built on work-stealing.
//
// # Architecture
//
// The runtime is built around a [Scheduler] that owns a fixed pool of worker
// goroutines. Each worker owns a Chase-Lev deque of task frames, an external
// submission mailbox, a segmented bump allocator for frame storage (the
// "async stack"), and an event-count slot used for parking. Idle workers
// steal the oldest frame from the top of a random victim's deque.
//
// Tasks are stackless: a task body is a resume dispatcher, a function of the
// form func(*Scope) Directive that is invoked once per straight-line segment
// and returns a directive describing the suspension point it reached
// ([Scope.Fork], [Scope.Call], [Scope.Join], [Scope.Return]). The runtime
// realizes child-first (help-first) scheduling: a fork pushes the parent onto
// the worker's own deque and runs the child directly, so the common
// deep-recursion case stays cache-hot and stealing moves continuations.
//
// # Execution Model
//
// Suspension occurs only at fork, call, join, and return points; between them
// a task body runs straight-line on its current worker, with no preemption.
// Within one task, program order is preserved. Across tasks, the only
// ordering guarantees are the happens-before edges induced by result writes
// before the join-counter decrement (release/acquire) and by deque push
// before pop/steal.
//
// Joins implement continuation stealing: the worker that completes the last
// outstanding child of a suspended parent inherits responsibility for
// resuming it, either directly or, when the parent last ran on another
// worker, by handing it back through that worker's mailbox.
//
// # Thread Safety
//
//   - [Scheduler.Submit] is safe to call from any goroutine, worker or not;
//     [Scheduler.SyncWait] blocks its caller and is for non-worker goroutines
//   - Deques are owned by one worker and read-shared with thieves
//   - Async stacks are strictly single-worker; stolen frames get a fresh one
//   - The submission mailbox is many-producer, single-drainer, lock-free
//
// # Usage
//
//	sched, err := forkjoin.New(forkjoin.WithWorkers(8))
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := sched.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer sched.Stop()
//
//	var fib func(res *int64, n int64) *forkjoin.Task
//	fib = func(res *int64, n int64) *forkjoin.Task {
//		var a, b int64
//		return forkjoin.NewTask(func(s *forkjoin.Scope) forkjoin.Directive {
//			switch s.Step() {
//			case 0:
//				if n < 2 {
//					*res = n
//					return s.Return()
//				}
//				return s.Fork(fib(&a, n-1))
//			case 1:
//				return s.Call(fib(&b, n-2))
//			case 2:
//				return s.Join()
//			default:
//				*res = a + b
//				return s.Return()
//			}
//		})
//	}
//
//	n, err := forkjoin.Wait(sched, func(res *int64) *forkjoin.Task {
//		return fib(res, 30)
//	})
//
// # Error Types
//
// Task bodies signal failure by panicking; the runtime recovers the panic,
// wraps non-error values in [PanicError], and surfaces exactly one failure
// per join scope at the enclosing join (first to arrive wins, later sibling
// failures are dropped with a rate-limited log entry). [Scheduler.SyncWait]
// returns the captured error. All wrapped errors support [errors.Is] and
// [errors.As] through their cause chain.
package forkjoin
