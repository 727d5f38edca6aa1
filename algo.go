package forkjoin

import (
	"golang.org/x/exp/constraints"
)

// Parallel algorithm helpers built on fork/call/join. These are clients of
// the core: each splits an index range divide-and-conquer style, forking the
// left half and calling the right, until the range is at or below the grain
// size and runs serially.

// defaultGrain picks a grain that yields roughly eight stealable chunks per
// worker, which keeps the tree shallow while leaving enough slack for load
// balancing.
func defaultGrain(n, workers int) int {
	g := n / (workers * 8)
	if g < 1 {
		g = 1
	}
	return g
}

// ForEach applies fn to every index in [0, n), in parallel. fn must be safe
// to call concurrently for distinct indexes. grain is the largest range run
// serially; pass 0 for a size-based default. Blocks until every call has
// completed, or returns the first failure captured from the task tree.
func ForEach(s *Scheduler, n, grain int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	if grain <= 0 {
		grain = defaultGrain(n, s.Workers())
	}
	return s.SyncWait(forEachTask(0, n, grain, fn))
}

func forEachTask(lo, hi, grain int, fn func(i int)) *Task {
	var mid int
	return NewTask(func(s *Scope) Directive {
		switch s.Step() {
		case 0:
			if hi-lo <= grain {
				for i := lo; i < hi; i++ {
					fn(i)
				}
				return s.Return()
			}
			mid = lo + (hi-lo)/2
			return s.Fork(forEachTask(lo, mid, grain, fn))
		case 1:
			return s.Call(forEachTask(mid, hi, grain, fn))
		case 2:
			return s.Join()
		default:
			return s.Return()
		}
	})
}

// Reduce folds at(0) ... at(n-1) with combine, in parallel. combine must be
// associative, and identity its neutral element; at must be safe to call
// concurrently for distinct indexes. grain as in [ForEach].
func Reduce[T any](s *Scheduler, n, grain int, identity T, combine func(a, b T) T, at func(i int) T) (T, error) {
	if n <= 0 {
		return identity, nil
	}
	if grain <= 0 {
		grain = defaultGrain(n, s.Workers())
	}
	return Wait(s, func(res *T) *Task {
		return reduceTask(res, 0, n, grain, identity, combine, at)
	})
}

func reduceTask[T any](res *T, lo, hi, grain int, identity T, combine func(a, b T) T, at func(i int) T) *Task {
	var mid int
	var left, right T
	return NewTask(func(s *Scope) Directive {
		switch s.Step() {
		case 0:
			if hi-lo <= grain {
				acc := identity
				for i := lo; i < hi; i++ {
					acc = combine(acc, at(i))
				}
				*res = acc
				return s.Return()
			}
			mid = lo + (hi-lo)/2
			return s.Fork(reduceTask(&left, lo, mid, grain, identity, combine, at))
		case 1:
			return s.Call(reduceTask(&right, mid, hi, grain, identity, combine, at))
		case 2:
			return s.Join()
		default:
			*res = combine(left, right)
			return s.Return()
		}
	})
}

// Sum adds up xs in parallel. The summation order differs from a serial
// loop, which matters for floating point; integer sums are exact.
func Sum[T constraints.Integer | constraints.Float](s *Scheduler, xs []T, grain int) (T, error) {
	return Reduce(s, len(xs), grain, 0, func(a, b T) T { return a + b }, func(i int) T { return xs[i] })
}
