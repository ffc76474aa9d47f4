package messages

import (
	"context"
	"errors"

	"github.com/scholarlink/relay/pkg/models"
)

// ErrEmptyBatch is returned when an identifier list is empty.
var ErrEmptyBatch = errors.New("message id batch is empty")

// Store is the query client for the external message store. The relay does
// not own the rows; it only flips status on the read-receipt path and
// re-reads the affected rows for fan-out.
type Store interface {
	// Insert persists a new message row. Used by the CRUD write path, not
	// by the fan-out path.
	Insert(ctx context.Context, msg *models.Message) error

	// GetByIDs returns the current state of the rows matching ids. Rows
	// that do not exist are omitted, not errors. No ordering is guaranteed.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Message, error)

	// MarkRead sets status to read for every row matching ids in a single
	// batched update. Rows already read keep their original read_at.
	MarkRead(ctx context.Context, ids []string) error

	// History returns the most recent messages for a booking, newest first.
	History(ctx context.Context, bookingID string, limit int) ([]*models.Message, error)

	// Close releases underlying resources.
	Close() error
}
