package forkjoin

import (
	"sync/atomic"
)

// frameState tracks where a frame is in its lifecycle.
//
// State Machine:
//
//	stateCreated (0) → stateRunning (1)            [first resume]
//	stateRunning (1) → stateSuspendedFork (2)      [fork directive]
//	stateRunning (1) → stateSuspendedCall (3)      [call directive]
//	stateRunning (1) → stateSuspendedJoin (4)      [join with outstanding children]
//	stateSuspended* → stateRunning (1)             [resume]
//	stateRunning (1) → stateCompleted (5)          [return directive or abnormal completion]
//	stateSuspendedJoin (4) → stateCompleted (5)    [join surfaces a captured failure]
//	stateCompleted (5) → stateDestroyed (6)        [storage released]
//
// Transitions into and out of stateSuspendedJoin race with completing
// children; the pending counter (see frame) is the authoritative
// synchronization, and the state value is advisory, used for invariant
// checks and introspection.
type frameState uint32

const (
	stateCreated frameState = iota
	stateRunning
	stateSuspendedFork
	stateSuspendedCall
	stateSuspendedJoin
	stateCompleted
	stateDestroyed
)

// String returns a human-readable representation of the state.
func (s frameState) String() string {
	switch s {
	case stateCreated:
		return "Created"
	case stateRunning:
		return "Running"
	case stateSuspendedFork:
		return "SuspendedAtFork"
	case stateSuspendedCall:
		return "SuspendedAtCall"
	case stateSuspendedJoin:
		return "SuspendedAtJoin"
	case stateCompleted:
		return "Completed"
	case stateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// frameTag identifies how a frame was scheduled, which determines its
// completion protocol.
type frameTag uint8

const (
	// tagRoot marks a frame submitted from outside the pool; completion is
	// signaled via the root latch.
	tagRoot frameTag = iota
	// tagCall marks a frame invoked synchronously; completion resumes the
	// parent directly, with no opportunity for stealing.
	tagCall
	// tagFork marks a frame that completes asynchronously; completion
	// decrements the parent's join counter.
	tagFork
)

// String returns a human-readable representation of the tag.
func (t frameTag) String() string {
	switch t {
	case tagRoot:
		return "Root"
	case tagCall:
		return "Call"
	case tagFork:
		return "Fork"
	default:
		return "Unknown"
	}
}

// atomicState wraps the advisory frame state.
type atomicState struct {
	v atomic.Uint32
}

func (s *atomicState) load() frameState { return frameState(s.v.Load()) }

func (s *atomicState) store(state frameState) { s.v.Store(uint32(state)) }

func (s *atomicState) transition(from, to frameState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
