package messages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scholarlink/relay/pkg/models"
)

func TestMemoryStoreInsert(t *testing.T) {
	store := NewMemoryStore()
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

	// Generated fields are reflected back to the caller.
	if msg.ID == "" {
		t.Error("expected generated id")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected generated created_at")
	}
	if msg.Status != models.StatusSent {
		t.Errorf("expected status %q, got %q", models.StatusSent, msg.Status)
	}

	if err := store.Insert(ctx, nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestMemoryStoreInsertIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	msg := &models.Message{ID: "m1", BookingID: "b1", Content: "original"}
	if err := store.Insert(ctx, msg); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Mutating the caller's struct must not reach the stored row.
	msg.Content = "mutated"

	rows, err := store.GetByIDs(ctx, []string{"m1"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Content != "original" {
		t.Fatalf("stored row leaked caller mutation: %+v", rows)
	}
}

func TestMemoryStoreGetByIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		if err := store.Insert(ctx, &models.Message{ID: id, BookingID: "b1"}); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	// Unknown ids are silently omitted.
	rows, err := store.GetByIDs(ctx, []string{"m1", "missing", "m2"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if _, err := store.GetByIDs(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestMemoryStoreMarkRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &models.Message{ID: "m1", BookingID: "b1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := store.MarkRead(ctx, []string{"m1", "missing"}); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}

	rows, err := store.GetByIDs(ctx, []string{"m1"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rows[0].Status != models.StatusRead {
		t.Errorf("expected status %q, got %q", models.StatusRead, rows[0].Status)
	}
	if rows[0].ReadAt == nil {
		t.Fatal("expected read_at to be set")
	}
	firstReadAt := *rows[0].ReadAt

	// A second flip keeps the original read_at.
	time.Sleep(5 * time.Millisecond)
	if err := store.MarkRead(ctx, []string{"m1"}); err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	rows, err = store.GetByIDs(ctx, []string{"m1"})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !rows[0].ReadAt.Equal(firstReadAt) {
		t.Errorf("read_at moved on repeat: was %v, now %v", firstReadAt, *rows[0].ReadAt)
	}

	if err := store.MarkRead(ctx, nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestMemoryStoreHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
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
	if err := store.Insert(ctx, &models.Message{ID: "other", BookingID: "b2"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rows, err := store.History(ctx, "b1", 2)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows with limit, got %d", len(rows))
	}
	// Newest first.
	if rows[0].ID != "m3" || rows[1].ID != "m2" {
		t.Fatalf("expected [m3 m2], got [%s %s]", rows[0].ID, rows[1].ID)
	}

	rows, err = store.History(ctx, "unknown", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for unknown booking, got %d", len(rows))
	}
}
