package forkjoin

import (
	"sync/atomic"
)

// mailbox is the external submission queue of a worker: an unbounded
// lock-free intrusive list. Many producers (submitters, and workers handing
// back a resumable parent after a remote join completion) splice a node with
// a single CAS; the owning worker detaches the whole list with one CAS and
// processes it oldest-first.
//
// A bounded ring would not do here: any number of producers may target the
// same worker, and a full-mailbox error has no reasonable handling at the
// submission sites. The intrusive node is part of the frame itself, so a
// push never allocates.
type mailbox struct {
	_    [0]func() // prevent copying
	head atomic.Pointer[frame]
}

// push splices f onto the mailbox. Never fails. The frame must not be queued
// anywhere else; its mailboxNext link is owned by the mailbox until the
// frame is drained.
func (m *mailbox) push(f *frame) {
	for {
		head := m.head.Load()
		f.mailboxNext = head
		if m.head.CompareAndSwap(head, f) {
			return
		}
	}
}

// drain detaches the entire list and returns it in arrival (oldest-first)
// order. The CAS-built list is newest-first, so the splice is reversed
// before it is returned.
func (m *mailbox) drain() *frame {
	head := m.head.Swap(nil)
	// Reverse the splice in place.
	var out *frame
	for head != nil {
		next := head.mailboxNext
		head.mailboxNext = out
		out = head
		head = next
	}
	return out
}

// empty reports whether the mailbox appears empty. Racy; used only for
// quiescence scans before parking.
func (m *mailbox) empty() bool {
	return m.head.Load() == nil
}
