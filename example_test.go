package forkjoin_test

import (
	"fmt"

	forkjoin "github.com/joeycumines/go-forkjoin"
)

// fib builds the canonical fork/join task: fork the first recursion, call
// the second, join, combine.
func fib(res *int64, n int64) *forkjoin.Task {
	var a, b int64
	return forkjoin.NewTask(func(s *forkjoin.Scope) forkjoin.Directive {
		switch s.Step() {
		case 0:
			if n < 2 {
				*res = n
				return s.Return()
			}
			return s.Fork(fib(&a, n-1))
		case 1:
			return s.Call(fib(&b, n-2))
		case 2:
			return s.Join()
		default:
			*res = a + b
			return s.Return()
		}
	})
}

func ExampleWait() {
	sched, err := forkjoin.New(forkjoin.WithWorkers(4))
	if err != nil {
		panic(err)
	}
	if err := sched.Start(); err != nil {
		panic(err)
	}
	defer sched.Stop()

	n, err := forkjoin.Wait(sched, func(res *int64) *forkjoin.Task {
		return fib(res, 10)
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(n)
	// Output:
	// 55
}

func ExampleForEach() {
	sched, err := forkjoin.New(forkjoin.WithWorkers(2))
	if err != nil {
		panic(err)
	}
	if err := sched.Start(); err != nil {
		panic(err)
	}
	defer sched.Stop()

	squares := make([]int, 6)
	if err := forkjoin.ForEach(sched, len(squares), 1, func(i int) {
		squares[i] = i * i
	}); err != nil {
		panic(err)
	}
	fmt.Println(squares)
	// Output:
	// [0 1 4 9 16 25]
}
