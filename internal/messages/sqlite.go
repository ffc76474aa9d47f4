package messages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scholarlink/relay/pkg/models"
)

// SQLiteStore implements the Store interface on a local SQLite database for
// single-box and development deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates the messages table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			booking_id   TEXT NOT NULL,
			sender_id    TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			content      TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'sent',
			created_at   TIMESTAMP NOT NULL,
			read_at      TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_messages_booking ON messages (booking_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}

	var readAt sql.NullTime
	if msg.ReadAt != nil {
		readAt = sql.NullTime{Time: *msg.ReadAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, booking_id, sender_id, recipient_id, content, status, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.BookingID, msg.SenderID, msg.RecipientID, msg.Content, msg.Status, msg.CreatedAt, readAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	query := fmt.Sprintf(`
		SELECT id, booking_id, sender_id, recipient_id, content, status, created_at, read_at
		FROM messages WHERE id IN (%s)
	`, placeholders(len(ids)))

	rows, err := s.db.QueryContext(ctx, query, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLiteStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	query := fmt.Sprintf(`
		UPDATE messages SET status = ?, read_at = COALESCE(read_at, ?)
		WHERE id IN (%s) AND status <> ?
	`, placeholders(len(ids)))

	args := make([]any, 0, len(ids)+3)
	args = append(args, models.StatusRead, time.Now())
	args = append(args, toArgs(ids)...)
	args = append(args, models.StatusRead)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, bookingID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, sender_id, recipient_id, content, status, created_at, read_at
		FROM messages WHERE booking_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, bookingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// placeholders builds a "?, ?, ?" list of length n.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
