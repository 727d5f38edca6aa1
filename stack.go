package forkjoin

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	// stackSegmentBytes is the storage per segment. The spec for the
	// allocator is a contiguous aligned region of at least 1 MiB; segments
	// keep that granularity while letting a stack grow without moving live
	// frames.
	stackSegmentBytes = 1 << 20

	// stackMaxSegments bounds a single stack's growth. Exhausting it means a
	// task tree recursed far beyond what frame storage is sized for, which
	// is fatal (clients must size stacks appropriately).
	stackMaxSegments = 64
)

// framesPerSegment is the slot count of one segment, derived from the frame
// size so a segment occupies stackSegmentBytes.
var framesPerSegment = func() int {
	n := stackSegmentBytes / int(unsafe.Sizeof(frame{}))
	if n < 1 {
		n = 1
	}
	return n
}()

// stackCheckpoint records an allocator position: segment index and the bump
// position within it.
type stackCheckpoint struct {
	seg int
	top int
}

// stackSegment is one contiguous run of frame slots.
type stackSegment struct {
	frames []frame
}

// asyncStack is a per-worker segmented bump allocator for frames. It is the
// storage backing coroutine activation records: allocation bumps the top of
// the current segment, and fork/join discipline guarantees LIFO deallocation
// on the unstolen path, so the common case is pointer arithmetic and nothing
// else.
//
// Ownership: strictly single-worker while installed as a worker's current
// stack. After a steal the previous owner parks the stack (it still holds
// the suspended ancestors of the stolen frame); the only cross-worker
// operation permitted on a parked stack is releaseRemote, which touches
// nothing but the live counter. Resuming a suspended frame does not restore
// the allocator; storage is reclaimed by LIFO deallocate, by a rewind of the
// installed stack once its live count is zero, or by recycling.
//
// A stack is recycled to the pool once it is not installed anywhere and its
// live count reaches zero; otherwise reclamation waits for pool shutdown.
type asyncStack struct {
	segments []*stackSegment
	seg      int // current segment index
	top      int // sentinel: next free slot in segments[seg]
	live     atomic.Int32
	// installed is true while some worker uses this stack as its current
	// allocator. Guarded by the owning worker on the install side; read by
	// remote releasers deciding whether they may recycle.
	installed atomic.Bool
}

var stackPool = sync.Pool{
	New: func() any {
		s := &asyncStack{}
		s.segments = append(s.segments, &stackSegment{frames: make([]frame, framesPerSegment)})
		return s
	},
}

// acquireStack takes a fresh (empty) stack from the pool and marks it
// installed.
func acquireStack() *asyncStack {
	s := stackPool.Get().(*asyncStack)
	s.installed.Store(true)
	return s
}

// park detaches the stack from its worker. If no frames are live the stack
// is recycled immediately; otherwise it is left to the last releaseRemote,
// or to shutdown.
func (s *asyncStack) park() {
	s.installed.Store(false)
	if s.live.Load() == 0 {
		s.recycle()
	}
}

// recycle resets the bump state and returns the stack to the pool. The
// caller must ensure no live frames remain and the stack is not installed.
func (s *asyncStack) recycle() {
	if !s.installed.CompareAndSwap(false, true) {
		// Lost a recycle race; exactly one caller pools it.
		return
	}
	// installed stays true while pooled, so a racing recycle keeps failing
	// its CAS; acquireStack sets it again on reuse.
	s.seg = 0
	s.top = 0
	stackPool.Put(s)
}

// allocate returns a frame slot at the current allocation point and advances
// the sentinel. Owner-only. The slot records its owning stack and base
// position, which deallocate rewinds to.
func (s *asyncStack) allocate() *frame {
	if s.top == framesPerSegment {
		s.seg++
		if s.seg == len(s.segments) {
			if s.seg >= stackMaxSegments {
				panic(fmt.Sprintf(
					"forkjoin: async stack exhausted (%d segments of %d bytes); task tree too deep for configured frame storage",
					stackMaxSegments, stackSegmentBytes,
				))
			}
			s.segments = append(s.segments, &stackSegment{frames: make([]frame, framesPerSegment)})
		}
		s.top = 0
	}
	base := stackCheckpoint{seg: s.seg, top: s.top}
	f := &s.segments[s.seg].frames[s.top]
	s.top++
	s.live.Add(1)
	f.stack = s
	f.base = base
	return f
}

// deallocate retracts the sentinel over f. Owner-only, strict LIFO: f must
// be the top allocation (see isTop). Frames separated from the sentinel by
// remotely released slots take the releaseRemote path instead; out-of-order
// owner deallocation is a runtime invariant failure.
func (s *asyncStack) deallocate(f *frame) {
	if f.stack != s {
		panic("forkjoin: async stack deallocate of foreign frame")
	}
	if !s.isTop(f) {
		panic("forkjoin: async stack deallocate out of order")
	}
	s.seg = f.base.seg
	s.top = f.base.top
	s.live.Add(-1)
}

// isTop reports whether f is the most recent allocation, i.e. the sentinel
// sits immediately past f's slot. Only then may the owner retract the bump
// pointer over it; otherwise remotely released slots (or a segment
// boundary) separate f from the sentinel and the storage is reclaimed
// wholesale instead.
func (s *asyncStack) isTop(f *frame) bool {
	seg, top := s.seg, s.top
	if top == 0 && seg > 0 {
		// The sentinel at the start of a segment is the same position as
		// the end of the previous one.
		seg--
		top = framesPerSegment
	}
	return seg == f.base.seg && top == f.base.top+1
}

// releaseRemote releases a frame whose storage lives on this stack from a
// worker that does not own it. The slot is not made reusable; it is
// reclaimed wholesale once the stack's live count is zero, by a rewind of
// the installed stack or when the stack is recycled.
func (s *asyncStack) releaseRemote() {
	if s.live.Add(-1) == 0 && !s.installed.Load() {
		s.recycle()
	}
}

// checkpoint records the current allocation point.
func (s *asyncStack) checkpoint() stackCheckpoint {
	return stackCheckpoint{seg: s.seg, top: s.top}
}

// restore rewinds the allocation point to c, reclaiming all storage
// allocated after it. Owner-only. Live-count bookkeeping for the reclaimed
// range has already happened at the frames' completion.
func (s *asyncStack) restore(c stackCheckpoint) {
	if c.seg > s.seg || (c.seg == s.seg && c.top > s.top) {
		panic("forkjoin: async stack restore past the sentinel")
	}
	s.seg = c.seg
	s.top = c.top
}
