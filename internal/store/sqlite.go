package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrianoneco/wpp-api/internal/domain"
	"github.com/adrianoneco/wpp-api/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		phone_number TEXT,
		qr_image TEXT,
		qr_payload TEXT,
		error TEXT,
		last_connected_at INTEGER,
		metadata_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		session_name TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		media_url TEXT,
		mimetype TEXT,
		is_from_me INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		status TEXT NOT NULL,
		metadata_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages(session_name, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_addresses ON messages(sender, recipient);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// execRetry runs a write statement with exponential backoff on SQLite
// concurrency errors (SQLITE_BUSY, database locked).
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == writeMaxRetries-1 {
			return nil, err
		}
		delay := writeRetryBaseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying write", "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, err
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves a session by name.
func (s *SQLiteStore) GetSession(ctx context.Context, name string) (*domain.Session, error) {
	query := `
		SELECT name, status, phone_number, qr_image, qr_payload, error,
		       last_connected_at, metadata_json, created_at, updated_at
		FROM sessions WHERE name = ?`

	row := s.db.QueryRowContext(ctx, query, name)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var phone, qrImage, qrPayload, errMsg, metadataJSON sql.NullString
	var lastConnected sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&sess.Name, &sess.Status, &phone, &qrImage, &qrPayload, &errMsg,
		&lastConnected, &metadataJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	sess.PhoneNumber = phone.String
	sess.QRImage = qrImage.String
	sess.QRPayload = qrPayload.String
	sess.Error = errMsg.String
	if lastConnected.Valid {
		ts := time.Unix(lastConnected.Int64, 0)
		sess.LastConnectedAt = &ts
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &sess.Metadata); err != nil {
			slog.Warn("Discarding unreadable session metadata", "session", sess.Name, "error", err)
		}
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// UpsertSession creates or updates a session record.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (name, status, phone_number, qr_image, qr_payload, error,
	                      last_connected_at, metadata_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		status = excluded.status,
		phone_number = excluded.phone_number,
		qr_image = excluded.qr_image,
		qr_payload = excluded.qr_payload,
		error = excluded.error,
		last_connected_at = excluded.last_connected_at,
		metadata_json = excluded.metadata_json,
		updated_at = excluded.updated_at`

	var lastConnected interface{}
	if sess.LastConnectedAt != nil {
		lastConnected = sess.LastConnectedAt.Unix()
	}
	var metadataJSON interface{}
	if len(sess.Metadata) > 0 {
		raw, err := json.Marshal(sess.Metadata)
		if err != nil {
			return fmt.Errorf("marshal session metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	now := time.Now()
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.execRetry(ctx, query,
		sess.Name, string(sess.Status),
		nullable(sess.PhoneNumber), nullable(sess.QRImage), nullable(sess.QRPayload), nullable(sess.Error),
		lastConnected, metadataJSON,
		createdAt.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (s *SQLiteStore) DeleteSession(ctx context.Context, name string) error {
	if _, err := s.execRetry(ctx, `DELETE FROM sessions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions returns all persisted sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT name, status, phone_number, qr_image, qr_payload, error,
		       last_connected_at, metadata_json, created_at, updated_at
		FROM sessions ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// InsertMessage persists a message, ignoring duplicates by message ID.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (message_id, session_name, sender, recipient, body, type,
	                      media_url, mimetype, is_from_me, timestamp, status,
	                      metadata_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(message_id) DO NOTHING`

	var metadataJSON interface{}
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.execRetry(ctx, query,
		msg.MessageID, msg.SessionName, msg.From, msg.To, msg.Body, string(msg.Type),
		nullable(msg.MediaURL), nullable(msg.Mimetype), msg.IsFromMe,
		msg.Timestamp.Unix(), string(msg.Status),
		metadataJSON, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateMessageStatus updates the delivery status of one message.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, messageID string, status domain.MessageStatus) error {
	result, err := s.execRetry(ctx,
		`UPDATE messages SET status = ? WHERE message_id = ?`, string(status), messageID)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateMessageStatus affected 0 rows", "message_id", messageID)
	}
	return nil
}

// GetMessage retrieves one message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	query := `
		SELECT message_id, session_name, sender, recipient, body, type,
		       media_url, mimetype, is_from_me, timestamp, status,
		       metadata_json, created_at
		FROM messages WHERE message_id = ?`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return msg, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var mediaURL, mimetype, metadataJSON sql.NullString
	var timestamp, createdAt int64

	if err := row.Scan(
		&msg.MessageID, &msg.SessionName, &msg.From, &msg.To, &msg.Body, &msg.Type,
		&mediaURL, &mimetype, &msg.IsFromMe, &timestamp, &msg.Status,
		&metadataJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	msg.MediaURL = mediaURL.String
	msg.Mimetype = mimetype.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &msg.Metadata); err != nil {
			slog.Warn("Discarding unreadable message metadata", "message_id", msg.MessageID, "error", err)
		}
	}
	msg.Timestamp = time.Unix(timestamp, 0)
	msg.CreatedAt = time.Unix(createdAt, 0)
	return &msg, nil
}

// ListMessages returns messages for a session, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionName string, f MessageFilter) ([]*domain.Message, error) {
	query := `
		SELECT message_id, session_name, sender, recipient, body, type,
		       media_url, mimetype, is_from_me, timestamp, status,
		       metadata_json, created_at
		FROM messages WHERE session_name = ?`
	args := []interface{}{sessionName}

	if f.From != "" {
		query += ` AND sender = ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		query += ` AND recipient = ?`
		args = append(args, f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// CountMessages counts messages for a session under the filter.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionName string, f MessageFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE session_name = ?`
	args := []interface{}{sessionName}
	if f.From != "" {
		query += ` AND sender = ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		query += ` AND recipient = ?`
		args = append(args, f.To)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
