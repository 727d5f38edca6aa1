//go:build linux

package forkjoin

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinWorker binds the calling worker goroutine to a CPU according to the
// strategy. Must be called from the worker goroutine itself; it locks the
// goroutine to its OS thread so the affinity mask sticks.
func pinWorker(strategy PinStrategy, index, workers int) error {
	if strategy == PinNone {
		return nil
	}

	ncpu := runtime.NumCPU()
	cpu := index % ncpu
	if strategy == PinScatter {
		// Stride the workers across the CPU range so consecutive workers
		// land far apart (a cheap approximation of fanning across
		// packages).
		stride := ncpu / workers
		if stride < 1 {
			stride = 1
		}
		cpu = (index * stride) % ncpu
	}

	runtime.LockOSThread()

	var set unix.CPUSet
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
