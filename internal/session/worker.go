package session

import (
	"log/slog"
	"sync"
)

// eventQueueDepth bounds the per-session event backlog. A full queue
// drops the event with a logged warning instead of blocking the
// driver's dispatcher.
const eventQueueDepth = 256

type event struct {
	kind string
	run  func() error
}

// worker processes the events of one session in arrival order on a
// single goroutine. Per-event failures are logged and never stop the
// loop, so one bad event cannot halt delivery for the session.
type worker struct {
	session string
	events  chan event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newWorker(session string) *worker {
	w := &worker{
		session: session,
		events:  make(chan event, eventQueueDepth),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for ev := range w.events {
		w.dispatch(ev)
	}
}

func (w *worker) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in session event handler",
				"session", w.session, "event", ev.kind, "panic", r)
		}
	}()

	if err := ev.run(); err != nil {
		slog.Error("Session event handling failed",
			"session", w.session, "event", ev.kind, "error", err)
	}
}

// enqueue schedules an event. Never blocks: events arriving after stop
// or into a full backlog are dropped with a warning.
func (w *worker) enqueue(kind string, run func() error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		slog.Warn("Session event arrived after close, dropping",
			"session", w.session, "event", kind)
		return
	}
	select {
	case w.events <- event{kind: kind, run: run}:
	default:
		slog.Warn("Session event queue full, dropping event",
			"session", w.session, "event", kind)
	}
}

// stop drains the queue and waits for the loop to exit.
func (w *worker) stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()
	<-w.done
}
