//go:build !linux

package forkjoin

// pinWorker is a no-op on platforms without affinity support; workers run
// unpinned regardless of strategy.
func pinWorker(strategy PinStrategy, index, workers int) error {
	_ = strategy
	_ = index
	_ = workers
	return nil
}
