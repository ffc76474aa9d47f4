package models

import (
	"time"
)

// MessageStatus is the delivery state of a message row.
type MessageStatus string

const (
	// StatusSent means the message is persisted but not yet read.
	StatusSent MessageStatus = "sent"
	// StatusRead means the recipient has marked the message as read.
	StatusRead MessageStatus = "read"
)

// Valid reports whether the status is one the relay knows about.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusRead:
		return true
	default:
		return false
	}
}

// Message is a row in the external message store. The relay never fabricates
// or mutates content; on the read-receipt path it only toggles Status from
// sent to read.
type Message struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"booking_id"`
	SenderID    string        `json:"sender_id"`
	RecipientID string        `json:"recipient_id"`
	Content     string        `json:"content"`
	Status      MessageStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ReadAt != nil {
		readAt := *m.ReadAt
		clone.ReadAt = &readAt
	}
	return &clone
}

// MarkRead flips the status to read at the given time. The flip is monotonic:
// an already-read message keeps its original ReadAt.
func (m *Message) MarkRead(at time.Time) {
	if m.Status == StatusRead {
		return
	}
	m.Status = StatusRead
	m.ReadAt = &at
}
