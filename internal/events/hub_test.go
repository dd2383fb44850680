package events

import (
	"testing"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
)

func TestSubscribeReceivesUpdates(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("alice")
	defer sub.Close()

	hub.PublishSessionUpdate(&domain.Session{Name: "alice", Status: domain.StatusConnected})

	select {
	case update := <-sub.C:
		if update.Type != "session.update" {
			t.Errorf("type = %q, want session.update", update.Type)
		}
		if update.Session.Status != domain.StatusConnected {
			t.Errorf("status = %q, want connected", update.Session.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestUpdatesAreScopedToSession(t *testing.T) {
	hub := NewHub()
	alice := hub.Subscribe("alice")
	defer alice.Close()
	bob := hub.Subscribe("bob")
	defer bob.Close()

	hub.PublishSessionUpdate(&domain.Session{Name: "alice", Status: domain.StatusQRCode})

	select {
	case <-alice.C:
	case <-time.After(time.Second):
		t.Fatal("alice's subscriber got nothing")
	}
	select {
	case update := <-bob.C:
		t.Errorf("bob received alice's update: %+v", update)
	default:
	}
}

func TestSlowSubscriberDropsUpdates(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("alice")
	defer sub.Close()

	// Publishing past the buffer must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.PublishSessionUpdate(&domain.Session{Name: "alice"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if got := len(sub.C); got != subscriberBuffer {
		t.Errorf("buffered updates = %d, want %d", got, subscriberBuffer)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("alice")
	sub.Close()
	// Double close is safe.
	sub.Close()

	hub.PublishSessionUpdate(&domain.Session{Name: "alice"})

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}
}
