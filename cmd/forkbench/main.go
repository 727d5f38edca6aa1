// Command forkbench is a thin driver for exercising the forkjoin scheduler:
// it runs one of the classic fork/join workloads (fibonacci, n-queens,
// parallel sum) on a configurable pool and reports timing plus scheduler
// counters.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	forkjoin "github.com/joeycumines/go-forkjoin"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	var (
		workers = flag.Int("workers", runtime.NumCPU(), "worker count")
		pin     = flag.String("pin", "none", "cpu binding: none|sequential|scatter")
		bench   = flag.String("bench", "fib", "benchmark: fib|nqueens|sum")
		size    = flag.Int("n", 0, "problem size (default per benchmark)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := logiface.LevelInformational
	if *verbose {
		level = logiface.LevelDebug
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithLevel(level),
	).Logger()

	strategy := forkjoin.PinNone
	switch *pin {
	case "none":
	case "sequential":
		strategy = forkjoin.PinSequential
	case "scatter":
		strategy = forkjoin.PinScatter
	default:
		fmt.Fprintf(os.Stderr, "forkbench: unknown pin strategy %q\n", *pin)
		os.Exit(2)
	}

	sched, err := forkjoin.New(
		forkjoin.WithWorkers(*workers),
		forkjoin.WithPinning(strategy),
		forkjoin.WithLogger(logger),
		forkjoin.WithMetrics(true),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forkbench: %v\n", err)
		os.Exit(1)
	}
	if err := sched.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "forkbench: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "forkbench: stop: %v\n", err)
		}
	}()

	start := time.Now()
	var result int64
	switch *bench {
	case "fib":
		n := sizeOr(*size, 30)
		result, err = forkjoin.Wait(sched, func(res *int64) *forkjoin.Task {
			return fibTask(res, int64(n))
		})
	case "nqueens":
		n := sizeOr(*size, 11)
		result, err = forkjoin.Wait(sched, func(res *int64) *forkjoin.Task {
			return nqueensTask(res, n, nil)
		})
	case "sum":
		n := sizeOr(*size, 1<<24)
		xs := make([]int64, n)
		for i := range xs {
			xs[i] = int64(i)
		}
		result, err = forkjoin.Sum(sched, xs, 0)
	default:
		fmt.Fprintf(os.Stderr, "forkbench: unknown benchmark %q\n", *bench)
		os.Exit(2)
	}
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "forkbench: %s failed: %v\n", *bench, err)
		os.Exit(1)
	}

	m := sched.Metrics()
	logger.Info().
		Str("bench", *bench).
		Int64("result", result).
		Dur("elapsed", elapsed).
		Int("workers", *workers).
		Uint64("steals", m.Steals).
		Uint64("parks", m.Parks).
		Uint64("frames", m.FramesAllocated).
		Uint64("suspended_joins", m.SuspendedJoins).
		Uint64("remote_resumes", m.RemoteResumes).
		Log("benchmark complete")
}

func sizeOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// fibTask is the canonical two-recursion fork/call/join body.
func fibTask(res *int64, n int64) *forkjoin.Task {
	var a, b int64
	return forkjoin.NewTask(func(s *forkjoin.Scope) forkjoin.Directive {
		switch s.Step() {
		case 0:
			if n < 2 {
				*res = n
				return s.Return()
			}
			return s.Fork(fibTask(&a, n-1))
		case 1:
			return s.Call(fibTask(&b, n-2))
		case 2:
			return s.Join()
		default:
			*res = a + b
			return s.Return()
		}
	})
}

// nqueensTask counts the solutions for an n by n board, forking one child
// per viable column of the current row.
func nqueensTask(res *int64, n int, pos []int8) *forkjoin.Task {
	var cols []int8
	var counts []int64
	return forkjoin.NewTask(func(s *forkjoin.Scope) forkjoin.Directive {
		step := s.Step()
		if step == 0 {
			if len(pos) == n {
				*res = 1
				return s.Return()
			}
			for c := int8(0); c < int8(n); c++ {
				if queenSafe(pos, c) {
					cols = append(cols, c)
				}
			}
			if len(cols) == 0 {
				*res = 0
				return s.Return()
			}
			counts = make([]int64, len(cols))
		}
		if step < len(cols) {
			next := make([]int8, len(pos)+1)
			copy(next, pos)
			next[len(pos)] = cols[step]
			child := nqueensTask(&counts[step], n, next)
			if step == len(cols)-1 {
				return s.Call(child)
			}
			return s.Fork(child)
		}
		if step == len(cols) {
			return s.Join()
		}
		var total int64
		for _, c := range counts {
			total += c
		}
		*res = total
		return s.Return()
	})
}

// queenSafe reports whether a queen in the next row at column c is attacked
// by none of the already placed queens.
func queenSafe(pos []int8, c int8) bool {
	row := len(pos)
	for r, pc := range pos {
		if pc == c {
			return false
		}
		d := row - r
		if int(pc)+d == int(c) || int(pc)-d == int(c) {
			return false
		}
	}
	return true
}
