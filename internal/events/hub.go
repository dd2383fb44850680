// Package events provides in-process broadcast of session updates to
// realtime subscribers.
package events

import (
	"log/slog"
	"sync"

	"github.com/adrianoneco/wpp-api/internal/domain"
)

// subscriberBuffer bounds each subscriber's backlog. Slow consumers
// lose updates instead of blocking the publisher.
const subscriberBuffer = 16

// SessionUpdate is one realtime notification about a session record.
type SessionUpdate struct {
	Type    string          `json:"type"`
	Session *domain.Session `json:"session"`
}

// Subscription is one listener on a session's update stream.
type Subscription struct {
	C    chan SessionUpdate
	hub  *Hub
	name string
	once sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans session updates out to websocket subscribers. Updates for a
// session reach only that session's subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe attaches a listener for one session name.
func (h *Hub) Subscribe(name string) *Subscription {
	sub := &Subscription{
		C:    make(chan SessionUpdate, subscriberBuffer),
		hub:  h,
		name: name,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[name]; !ok {
		h.subs[name] = make(map[*Subscription]struct{})
	}
	h.subs[name][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.name]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.name)
		}
	}
	close(sub.C)
}

// PublishSessionUpdate broadcasts a session record change. Never
// blocks; a subscriber with a full buffer skips the update.
func (h *Hub) PublishSessionUpdate(sess *domain.Session) {
	update := SessionUpdate{Type: "session.update", Session: sess}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[sess.Name] {
		select {
		case sub.C <- update:
		default:
			slog.Debug("Dropping session update for slow subscriber", "session", sess.Name)
		}
	}
}
