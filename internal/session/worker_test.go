package session

import (
	"sync"
	"testing"
	"time"
)

func TestWorkerProcessesInOrder(t *testing.T) {
	w := newWorker("alice")

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		w.enqueue("test", func() error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	w.stop()

	if len(got) != 100 {
		t.Fatalf("processed %d events, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d processed out of order (got value %d)", i, v)
		}
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	w := newWorker("alice")

	done := make(chan struct{})
	w.enqueue("boom", func() error {
		panic("event handler exploded")
	})
	w.enqueue("after", func() error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped processing after a panic")
	}
	w.stop()
}

func TestWorkerEnqueueAfterStop(t *testing.T) {
	w := newWorker("alice")
	w.stop()

	// Must not panic or block.
	w.enqueue("late", func() error {
		t.Error("event ran after stop")
		return nil
	})
	time.Sleep(20 * time.Millisecond)
}
