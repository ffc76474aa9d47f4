package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event kinds. Event names on the wire are fixed by the clients.
type EventKind string

const (
	KindJoin        EventKind = "join"
	KindSendMessage EventKind = "send_message"
	KindMarkAsRead  EventKind = "markAsRead"
)

// Outbound event names.
const (
	EventNewMessage  = "new_message"
	EventMessageRead = "message_read"
)

var (
	// ErrUnknownEvent is returned for event names the relay does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrEmptyBatch is returned when markAsRead carries no message ids.
	ErrEmptyBatch = errors.New("messageIds must be a non-empty array")
)

// JoinParams announces the connection's user identity.
type JoinParams struct {
	UserID string `json:"userId"`
}

// MarkAsReadParams is the read-receipt batch: the acting user, the booking
// the messages belong to (client-side context only) and the ids to flip.
type MarkAsReadParams struct {
	BookingID  string   `json:"bookingId"`
	UserID     string   `json:"userId"`
	MessageIDs []string `json:"messageIds"`
}

// Event is one decoded inbound event. Exactly one of the param fields is set,
// matching Kind. Send payloads stay raw so fan-out forwards them verbatim.
type Event struct {
	Kind       EventKind
	Join       *JoinParams
	Send       json.RawMessage
	MarkAsRead *MarkAsReadParams
}

// ParseEvent decodes a named wire event into a tagged Event. Misspelled or
// unsupported names surface ErrUnknownEvent instead of being silently
// ignored.
func ParseEvent(name string, payload json.RawMessage) (*Event, error) {
	switch EventKind(name) {
	case KindJoin:
		var params JoinParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("invalid join payload: %w", err)
		}
		return &Event{Kind: KindJoin, Join: &params}, nil

	case KindSendMessage:
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		return &Event{Kind: KindSendMessage, Send: payload}, nil

	case KindMarkAsRead:
		var params MarkAsReadParams
		if err := json.Unmarshal(payload, &params); err != nil {
			return nil, fmt.Errorf("invalid markAsRead payload: %w", err)
		}
		return &Event{Kind: KindMarkAsRead, MarkAsRead: &params}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}
