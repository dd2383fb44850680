// Package store provides persistence for session and message records.
package store

import (
	"context"

	"github.com/adrianoneco/wpp-api/internal/domain"
)

// MessageFilter narrows message history queries. Zero values are
// ignored. Limit defaults to 50 and Page is 1-based.
type MessageFilter struct {
	From  string
	To    string
	Limit int
	Page  int
}

// Repository is the durable source of truth for session status across
// restarts and the single home of message records.
type Repository interface {
	// GetSession retrieves a session by name. Returns nil, nil when absent.
	GetSession(ctx context.Context, name string) (*domain.Session, error)

	// UpsertSession creates the session record for sess.Name or
	// overwrites the mutable connection-state fields of the existing
	// record with the values carried by sess.
	UpsertSession(ctx context.Context, sess *domain.Session) error

	// DeleteSession removes a session record entirely. Deleting an
	// absent session is not an error.
	DeleteSession(ctx context.Context, name string) error

	// ListSessions returns all persisted sessions.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// InsertMessage persists a message keyed by its message ID.
	// Inserting a message whose ID already exists is a no-op, so
	// redelivered inbound events never duplicate records.
	InsertMessage(ctx context.Context, msg *domain.Message) error

	// UpdateMessageStatus updates the delivery status of a message.
	UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) error

	// GetMessage retrieves one message by ID. Returns nil, nil when absent.
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)

	// ListMessages returns messages for a session, newest first.
	ListMessages(ctx context.Context, sessionName string, f MessageFilter) ([]*domain.Message, error)

	// CountMessages counts messages for a session under the filter.
	CountMessages(ctx context.Context, sessionName string, f MessageFilter) (int64, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}
