package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
)

// MemoryStore implements Repository with in-process maps. It backs
// tests and zero-config deployments; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	messages map[string]domain.Message
}

// NewMemory creates a new in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.Session),
		messages: make(map[string]domain.Message),
	}
}

// GetSession retrieves a session by name.
func (s *MemoryStore) GetSession(_ context.Context, name string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[name]; ok {
		return &sess, nil
	}
	return nil, nil
}

// UpsertSession creates or updates a session record.
func (s *MemoryStore) UpsertSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *sess
	now := time.Now()
	if existing, ok := s.sessions[sess.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.sessions[sess.Name] = stored
	return nil
}

// DeleteSession removes a session record.
func (s *MemoryStore) DeleteSession(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, name)
	return nil
}

// ListSessions returns all persisted sessions sorted by name.
func (s *MemoryStore) ListSessions(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*domain.Session, 0, len(s.sessions))
	for name := range s.sessions {
		sess := s.sessions[name]
		sessions = append(sessions, &sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, nil
}

// InsertMessage persists a message, ignoring duplicates by message ID.
func (s *MemoryStore) InsertMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.MessageID]; exists {
		return nil
	}
	stored := *msg
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.messages[msg.MessageID] = stored
	return nil
}

// UpdateMessageStatus updates the delivery status of one message.
func (s *MemoryStore) UpdateMessageStatus(_ context.Context, messageID string, status domain.MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg, ok := s.messages[messageID]; ok {
		msg.Status = status
		s.messages[messageID] = msg
	}
	return nil
}

// GetMessage retrieves one message by ID.
func (s *MemoryStore) GetMessage(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if msg, ok := s.messages[messageID]; ok {
		return &msg, nil
	}
	return nil, nil
}

func (s *MemoryStore) filtered(sessionName string, f MessageFilter) []*domain.Message {
	var matched []*domain.Message
	for id := range s.messages {
		msg := s.messages[id]
		if msg.SessionName != sessionName {
			continue
		}
		if f.From != "" && msg.From != f.From {
			continue
		}
		if f.To != "" && msg.To != f.To {
			continue
		}
		matched = append(matched, &msg)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })
	return matched
}

// ListMessages returns messages for a session, newest first.
func (s *MemoryStore) ListMessages(_ context.Context, sessionName string, f MessageFilter) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filtered(sessionName, f)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// CountMessages counts messages for a session under the filter.
func (s *MemoryStore) CountMessages(_ context.Context, sessionName string, f MessageFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.filtered(sessionName, f))), nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close drops all stored records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]domain.Session)
	s.messages = make(map[string]domain.Message)
	return nil
}
