package messages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scholarlink/relay/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return store
}

func TestSQLiteStorePathRequired(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	msg := &models.Message{
		BookingID:   "b1",
		SenderID:    "user-s",
		RecipientID: "user-r",
		Content:     "hello",
	}
	if err := store.Insert(ctx, msg); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected generated id")
	}

	rows, err := store.GetByIDs(ctx, []string{msg.ID})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.BookingID != "b1" || got.SenderID != "user-s" || got.RecipientID != "user-r" {
		t.Errorf("row fields do not match: %+v", got)
	}
	if got.Status != models.StatusSent {
		t.Errorf("expected status %q, got %q", models.StatusSent, got.Status)
	}
	if got.ReadAt != nil {
		t.Error("expected nil read_at on fresh row")
	}
}

func TestSQLiteGetByIDsOmitsMissing(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, &models.Message{ID: "m1", BookingID: "b1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rows, err := store.GetByIDs(ctx, []string{"m1", "missing"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "m1" {
		t.Fatalf("expected only m1, got %+v", rows)
	}

	if _, err := store.GetByIDs(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestSQLiteMarkRead(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		if err := store.Insert(ctx, &models.Message{ID: id, BookingID: "b1"}); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	if err := store.MarkRead(ctx, []string{"m1", "m2", "missing"}); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}

	rows, err := store.GetByIDs(ctx, []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	for _, row := range rows {
		if row.Status != models.StatusRead {
			t.Errorf("%s: expected status %q, got %q", row.ID, models.StatusRead, row.Status)
		}
		if row.ReadAt == nil {
			t.Errorf("%s: expected read_at to be set", row.ID)
		}
	}

	// Repeating the update keeps the original read_at.
	first := rows[0].ReadAt
	time.Sleep(5 * time.Millisecond)
	if err := store.MarkRead(ctx, []string{rows[0].ID}); err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	again, err := store.GetByIDs(ctx, []string{rows[0].ID})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !again[0].ReadAt.Equal(*first) {
		t.Errorf("read_at moved on repeat: was %v, now %v", first, again[0].ReadAt)
	}

	if err := store.MarkRead(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestSQLiteHistory(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &models.Message{
			ID:        id,
			BookingID: "b1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Insert(ctx, msg); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	rows, err := store.History(ctx, "b1", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != "m3" || rows[1].ID != "m2" {
		t.Fatalf("expected [m3 m2], got [%s %s]", rows[0].ID, rows[1].ID)
	}
}
