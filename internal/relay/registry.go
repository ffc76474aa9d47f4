// Package relay implements the presence and message fan-out core: a registry
// of per-user rooms over live connections, verbatim message fan-out, and
// read-receipt propagation against the external message store.
package relay

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/scholarlink/relay/internal/observability"
)

// Subscriber is one live transport connection. Enqueue must not block; it
// reports false when the payload was dropped (send buffer full).
type Subscriber interface {
	ID() string
	Enqueue(data []byte) bool
}

// Frame is the outbound event envelope written to clients.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// FrameError carries a typed failure back to the calling connection.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Registry maps user identities to the set of live connections subscribed to
// that user's room. It is owned exclusively by the relay process and rebuilt
// empty on restart; membership is never persisted.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Subscriber // room -> subscriber id -> subscriber
	joined map[string]map[string]struct{}   // subscriber id -> set of rooms

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. If logger is nil, slog.Default()
// is used.
func NewRegistry(logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Registry{
		rooms:   map[string]map[string]Subscriber{},
		joined:  map[string]map[string]struct{}{},
		logger:  logger,
		metrics: metrics,
	}
}

// Join adds sub to the room named by userID. A missing or empty userID is a
// silent no-op; joining the same room twice has no additional effect.
func (r *Registry) Join(sub Subscriber, userID string) {
	userID = strings.TrimSpace(userID)
	if sub == nil || userID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[userID]
	if room == nil {
		room = map[string]Subscriber{}
		r.rooms[userID] = room
	}
	if _, ok := room[sub.ID()]; ok {
		return
	}
	room[sub.ID()] = sub

	if r.joined[sub.ID()] == nil {
		r.joined[sub.ID()] = map[string]struct{}{}
	}
	r.joined[sub.ID()][userID] = struct{}{}

	r.metrics.RoomsActive.Set(float64(len(r.rooms)))
	r.logger.Debug("connection joined room", "connection_id", sub.ID(), "room", userID)
}

// Leave removes sub from the room named by userID.
func (r *Registry) Leave(sub Subscriber, userID string) {
	if sub == nil || userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sub.ID(), userID)
}

// Disconnect removes the connection from every room it joined. Disconnection
// is always successful from the relay's perspective.
func (r *Registry) Disconnect(sub Subscriber) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[sub.ID()] {
		r.leaveLocked(sub.ID(), room)
	}
}

func (r *Registry) leaveLocked(subID, userID string) {
	if room, ok := r.rooms[userID]; ok {
		delete(room, subID)
		if len(room) == 0 {
			delete(r.rooms, userID)
		}
	}
	if rooms, ok := r.joined[subID]; ok {
		delete(rooms, userID)
		if len(rooms) == 0 {
			delete(r.joined, subID)
		}
	}
	r.metrics.RoomsActive.Set(float64(len(r.rooms)))
}

// Deliver sends payload tagged with event to every connection currently in
// room. An empty room is a no-op, not an error: the recipient is offline and
// offline delivery is out of scope. Returns the number of connections the
// frame was enqueued to.
func (r *Registry) Deliver(room, event string, payload json.RawMessage) int {
	if room == "" {
		return 0
	}

	r.mu.RLock()
	members := r.rooms[room]
	snapshot := make([]Subscriber, 0, len(members))
	for _, sub := range members {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		return 0
	}

	data, err := json.Marshal(Frame{Event: event, Payload: payload})
	if err != nil {
		r.logger.Error("failed to marshal frame", "event", event, "error", err)
		return 0
	}

	delivered := 0
	for _, sub := range snapshot {
		if sub.Enqueue(data) {
			delivered++
			r.metrics.DeliveriesTotal.WithLabelValues(event).Inc()
		} else {
			r.metrics.DeliveriesDropped.WithLabelValues(event).Inc()
			r.logger.Warn("dropped delivery to slow connection",
				"connection_id", sub.ID(), "room", room, "event", event)
		}
	}
	return delivered
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Members returns the number of connections in room.
func (r *Registry) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
