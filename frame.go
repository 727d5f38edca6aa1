package forkjoin

import (
	"sync/atomic"
)

// frame is the runtime state of one task: its resume dispatcher, its link to
// the enclosing frame, its position in frame storage, and the counters that
// drive the fork/join protocol. Every task has exactly one frame; child
// frames are allocated from the async stack of the worker that created them,
// root frames from the heap.
//
// Counter protocol (see also worker.go):
//
//	pending = outstanding forked children + 1 self token while the parent
//	          has not abandoned its join fast path
//
// A parent at a join drops its self token only when it must suspend; the
// child whose completion brings pending to zero inherits the parent. steals
// is incremented only by a thief, at the moment of the steal, and is what
// lets an un-stolen parent skip the counter dance entirely.
//
// Cyclic links: parent→child ownership is realized through the stack (a
// child is reclaimed from the parent's allocation scope); the child's parent
// pointer is a non-owning back reference.
type frame struct {
	// body is the resume dispatcher; step selects the straight-line segment
	// to run next.
	body func(*Scope) Directive
	step int32

	tag   frameTag
	state atomicState

	parent *frame

	// home is the worker that most recently executed this frame; a remote
	// join completion hands the frame back through home's mailbox.
	home *workerContext

	// stack/base locate this frame's storage (set by asyncStack.allocate).
	stack *asyncStack
	base  stackCheckpoint

	// suspendedStack/suspendedTop record the allocator position at the time
	// the frame was suspended. The worker does not restore the allocator to
	// this position when the frame resumes.
	suspendedStack *asyncStack
	suspendedTop   stackCheckpoint

	pending atomic.Int32
	steals  atomic.Int32

	// exception holds the first failure captured from this frame's
	// descendants (or its own body). Thread-safe first-wins setter, single
	// reader at the join.
	exception atomic.Pointer[error]

	// mailboxNext is the intrusive link used while the frame sits in a
	// mailbox.
	mailboxNext *frame

	// latch and rootErr are used by root frames only: the latch is the
	// single-shot completion signal readable by the submitter, and rootErr
	// is written (if at all) before the latch is closed.
	latch   chan struct{}
	rootErr error

	// scope is the per-frame view handed to the body; reused across resumes
	// to keep the hot path allocation-free.
	scope Scope
}

// reset initializes a recycled frame slot for a new task.
func (f *frame) reset(body func(*Scope) Directive, tag frameTag, parent *frame) {
	f.body = body
	f.step = 0
	f.tag = tag
	f.state.store(stateCreated)
	f.parent = parent
	f.home = nil
	f.suspendedStack = nil
	f.suspendedTop = stackCheckpoint{}
	f.pending.Store(1)
	f.steals.Store(0)
	f.exception.Store(nil)
	f.mailboxNext = nil
	f.latch = nil
	f.rootErr = nil
	f.scope = Scope{f: f}
}

// captureException records err as this frame's failure, first writer wins.
// Reports whether err was stored (false: a sibling got there first and err
// is dropped).
func (f *frame) captureException(err error) bool {
	return f.exception.CompareAndSwap(nil, &err)
}

// takeException consumes the captured failure, if any. Single-reader: called
// only by the worker resuming this frame at a join (or completing it), after
// all children have joined. The slot is cleared on read, so a failure is
// surfaced exactly once and the slot is free for the next join scope.
func (f *frame) takeException() error {
	if p := f.exception.Swap(nil); p != nil {
		return *p
	}
	return nil
}

// saveSuspension records the allocator position for a later restore.
func (f *frame) saveSuspension(s *asyncStack) {
	f.suspendedStack = s
	f.suspendedTop = s.checkpoint()
}
