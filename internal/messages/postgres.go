package messages

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scholarlink/relay/pkg/models"
)

// PostgresStore implements the Store interface against the managed Postgres
// database that owns the message rows.
type PostgresStore struct {
	db *sql.DB

	// Prepared statements for performance
	stmtInsert   *sql.Stmt
	stmtGetByIDs *sql.Stmt
	stmtMarkRead *sql.Stmt
	stmtHistory  *sql.Stmt
}

// PostgresConfig holds configuration for the Postgres connection.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a connection pool and prepares all statements.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

// DB exposes the underlying database connection for migrations.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// prepareStatements prepares all SQL statements for reuse.
func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtInsert, err = s.db.Prepare(`
		INSERT INTO messages (id, booking_id, sender_id, recipient_id, content, status, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	s.stmtGetByIDs, err = s.db.Prepare(`
		SELECT id, booking_id, sender_id, recipient_id, content, status, created_at, read_at
		FROM messages WHERE id = ANY($1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get by ids: %w", err)
	}

	s.stmtMarkRead, err = s.db.Prepare(`
		UPDATE messages SET status = $1, read_at = COALESCE(read_at, $2)
		WHERE id = ANY($3) AND status <> $1
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mark read: %w", err)
	}

	s.stmtHistory, err = s.db.Prepare(`
		SELECT id, booking_id, sender_id, recipient_id, content, status, created_at, read_at
		FROM messages WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history: %w", err)
	}

	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, msg *models.Message) error {
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

	_, err := s.stmtInsert.ExecContext(ctx,
		msg.ID, msg.BookingID, msg.SenderID, msg.RecipientID,
		msg.Content, msg.Status, msg.CreatedAt, readAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	rows, err := s.stmtGetByIDs.QueryContext(ctx, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (s *PostgresStore) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	_, err := s.stmtMarkRead.ExecContext(ctx, models.StatusRead, time.Now(), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, bookingID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.stmtHistory.QueryContext(ctx, bookingID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Close closes the database connection and prepared statements.
func (s *PostgresStore) Close() error {
	var errs []error

	for _, stmt := range []*sql.Stmt{s.stmtInsert, s.stmtGetByIDs, s.stmtMarkRead, s.stmtHistory} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

// scanMessages reads message rows from a result set.
func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	out := make([]*models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var readAt sql.NullTime
		if err := rows.Scan(
			&msg.ID, &msg.BookingID, &msg.SenderID, &msg.RecipientID,
			&msg.Content, &msg.Status, &msg.CreatedAt, &readAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			msg.ReadAt = &t
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}
