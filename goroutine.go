package forkjoin

import (
	"runtime"
)

// getGoroutineID returns the current goroutine's id, parsed from the
// runtime's stack header. Workers publish theirs at startup, which gives
// runtime code a process-wide way to answer "am I on a worker, and which
// one" - the equivalent of a thread-local current-worker pointer.
//
// The parse costs a short runtime.Stack call; it sits on the submission
// path, never on the fork/join hot path.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
