package forkjoin

import (
	"sync"
	"testing"
)

func TestMailbox_DrainOrderOldestFirst(t *testing.T) {
	var m mailbox
	frames := testFrames(5)
	for _, f := range frames {
		m.push(f)
	}

	got := m.drain()
	for i := 0; i < 5; i++ {
		if got == nil {
			t.Fatalf("drained list ended at %d, want 5 frames", i)
		}
		if got != frames[i] {
			t.Fatalf("drain position %d = frames[%d], want frames[%d]", i, frameIndex(frames, got), i)
		}
		got = got.mailboxNext
	}
	if got != nil {
		t.Fatal("drained list longer than pushed")
	}

	if !m.empty() {
		t.Fatal("mailbox not empty after drain")
	}
	if m.drain() != nil {
		t.Fatal("second drain returned frames")
	}
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	const (
		producers = 8
		perProd   = 10_000
	)

	var m mailbox
	total := producers * perProd
	frames := testFrames(total)
	index := make(map[*frame]int, total)
	for i, f := range frames {
		index[f] = i
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				m.push(frames[p*perProd+i])
			}
		}(p)
	}

	// Drain concurrently with the producers, then once more after they
	// finish; every frame must appear exactly once.
	seen := make([]bool, total)
	consume := func(list *frame) {
		for list != nil {
			next := list.mailboxNext
			list.mailboxNext = nil
			i, ok := index[list]
			if !ok {
				t.Error("drained a frame that was never pushed")
			} else if seen[i] {
				t.Errorf("frame %d drained twice", i)
			} else {
				seen[i] = true
			}
			list = next
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		consume(m.drain())
		select {
		case <-done:
			consume(m.drain())
			for i, ok := range seen {
				if !ok {
					t.Fatalf("frame %d lost", i)
				}
			}
			return
		default:
		}
	}
}

// TestMailbox_PerProducerOrder verifies that one producer's frames come out
// in submission order, across drains.
func TestMailbox_PerProducerOrder(t *testing.T) {
	var m mailbox
	frames := testFrames(1000)

	var out []*frame
	for i, f := range frames {
		m.push(f)
		if i%7 == 0 {
			for g := m.drain(); g != nil; {
				next := g.mailboxNext
				g.mailboxNext = nil
				out = append(out, g)
				g = next
			}
		}
	}
	for g := m.drain(); g != nil; {
		next := g.mailboxNext
		g.mailboxNext = nil
		out = append(out, g)
		g = next
	}

	if len(out) != len(frames) {
		t.Fatalf("drained %d frames, want %d", len(out), len(frames))
	}
	for i := range out {
		if out[i] != frames[i] {
			t.Fatalf("position %d: frames[%d], want frames[%d]", i, frameIndex(frames, out[i]), i)
		}
	}
}
