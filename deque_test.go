package forkjoin

import (
	"sync"
	"sync/atomic"
	"testing"
)

// testFrames returns n distinct heap frames for use as deque elements.
func testFrames(n int) []*frame {
	frames := make([]*frame, n)
	for i := range frames {
		frames[i] = &frame{}
	}
	return frames
}

// frameIndex maps a frame back to its position in frames, or -1.
func frameIndex(frames []*frame, f *frame) int {
	for i, g := range frames {
		if g == f {
			return i
		}
	}
	return -1
}

func TestDeque_PushPopLIFO(t *testing.T) {
	d := newDeque()
	frames := testFrames(10)

	for _, f := range frames {
		d.push(f)
	}
	if got := d.size(); got != 10 {
		t.Fatalf("size = %d, want 10", got)
	}

	for i := 9; i >= 0; i-- {
		f := d.pop()
		if f != frames[i] {
			t.Fatalf("pop %d = frames[%d], want frames[%d]", 9-i, frameIndex(frames, f), i)
		}
	}

	if f := d.pop(); f != nil {
		t.Fatalf("pop on empty deque returned %p", f)
	}
	if !d.empty() {
		t.Fatal("deque not empty after draining")
	}
}

func TestDeque_StealFIFO(t *testing.T) {
	d := newDeque()
	frames := testFrames(10)
	for _, f := range frames {
		d.push(f)
	}

	for i := 0; i < 10; i++ {
		f, res := d.steal()
		if res != stealOK {
			t.Fatalf("steal %d: result %d, want stealOK", i, res)
		}
		if f != frames[i] {
			t.Fatalf("steal %d = frames[%d], want frames[%d]", i, frameIndex(frames, f), i)
		}
	}

	if _, res := d.steal(); res != stealEmpty {
		t.Fatalf("steal on empty deque: result %d, want stealEmpty", res)
	}
}

func TestDeque_Growth(t *testing.T) {
	d := newDeque()
	n := dequeInitialCap * 4
	frames := testFrames(n)

	for _, f := range frames {
		d.push(f)
	}
	if got := d.size(); got != n {
		t.Fatalf("size = %d, want %d", got, n)
	}

	// Everything must come back out, in order, across the growth boundary.
	for i := 0; i < n; i++ {
		f, res := d.steal()
		if res != stealOK || f != frames[i] {
			t.Fatalf("steal %d after growth: result %d frame frames[%d]", i, res, frameIndex(frames, f))
		}
	}
}

func TestDeque_InterleavedPushPop(t *testing.T) {
	d := newDeque()
	frames := testFrames(3)

	d.push(frames[0])
	d.push(frames[1])
	if f := d.pop(); f != frames[1] {
		t.Fatalf("pop = frames[%d], want frames[1]", frameIndex(frames, f))
	}
	d.push(frames[2])
	if f := d.pop(); f != frames[2] {
		t.Fatalf("pop = frames[%d], want frames[2]", frameIndex(frames, f))
	}
	if f := d.pop(); f != frames[0] {
		t.Fatalf("pop = frames[%d], want frames[0]", frameIndex(frames, f))
	}
}

// TestDeque_ConcurrentSteals verifies that under owner pops racing with many
// thieves, every element is taken by exactly one party.
func TestDeque_ConcurrentSteals(t *testing.T) {
	const (
		thieves = 4
		total   = 100_000
	)

	d := newDeque()
	frames := testFrames(total)
	index := make(map[*frame]int, total)
	for i, f := range frames {
		index[f] = i
	}
	taken := make([]atomic.Int32, total)

	var wg sync.WaitGroup
	var remaining atomic.Int64
	remaining.Store(total)

	take := func(f *frame) {
		i, ok := index[f]
		if !ok {
			t.Error("took a frame that was never pushed")
			return
		}
		if taken[i].Add(1) != 1 {
			t.Errorf("frame %d taken more than once", i)
		}
		remaining.Add(-1)
	}

	for i := 0; i < thieves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for remaining.Load() > 0 {
				f, res := d.steal()
				if res == stealOK {
					take(f)
				}
			}
		}()
	}

	// Owner: push everything, interleaving pops.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i, f := range frames {
			d.push(f)
			if i%3 == 0 {
				if g := d.pop(); g != nil {
					take(g)
				}
			}
		}
		for {
			g := d.pop()
			if g == nil {
				if remaining.Load() == 0 {
					return
				}
				continue
			}
			take(g)
		}
	}()

	wg.Wait()

	for i := range taken {
		if taken[i].Load() != 1 {
			t.Fatalf("frame %d taken %d times, want exactly 1", i, taken[i].Load())
		}
	}
}

// TestDeque_SingleElementRace drives the pop-vs-steal race on the last
// element: exactly one side must win each round.
func TestDeque_SingleElementRace(t *testing.T) {
	d := newDeque()
	const rounds = 50_000

	for r := 0; r < rounds; r++ {
		f := &frame{}
		d.push(f)

		winners := make(chan string, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if g := d.pop(); g != nil {
				winners <- "pop"
			}
		}()
		go func() {
			defer wg.Done()
			for {
				g, res := d.steal()
				if res == stealOK {
					if g != f {
						t.Error("steal returned wrong frame")
					}
					winners <- "steal"
					return
				}
				if res == stealEmpty {
					return
				}
			}
		}()
		wg.Wait()
		close(winners)

		n := 0
		for range winners {
			n++
		}
		if n != 1 {
			t.Fatalf("round %d: %d winners, want exactly 1", r, n)
		}
		if !d.empty() {
			t.Fatalf("round %d: deque not empty after race", r)
		}
	}
}
