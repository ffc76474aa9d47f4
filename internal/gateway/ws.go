package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scholarlink/relay/internal/relay"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 15 * time.Second
)

// inboundFrame is the wire envelope for client events.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsConn is one live websocket connection. It implements relay.Subscriber:
// the registry enqueues outbound frames onto send, and the write loop drains
// them. Enqueue never blocks; a full buffer drops the frame.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	id        string
	closeOnce sync.Once
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		server: s,
		conn:   conn,
		send:   make(chan []byte, s.sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		id:     uuid.NewString(),
	}

	s.metrics.ConnectionsActive.Inc()
	s.logger.Debug("connection opened", "connection_id", c.id, "remote", r.RemoteAddr)

	// Clients that know their identity at connect time join immediately;
	// the rest send an explicit join event later.
	if userID := r.URL.Query().Get("userId"); userID != "" {
		s.service.Registry().Join(c, userID)
	}

	c.run()
}

// ID implements relay.Subscriber.
func (c *wsConn) ID() string {
	return c.id
}

// Enqueue implements relay.Subscriber.
func (c *wsConn) Enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsConn) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.server.service.Registry().Disconnect(c)
		c.server.metrics.ConnectionsActive.Dec()
		c.server.logger.Debug("connection closed", "connection_id", c.id)
	})
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("invalid_frame", err.Error())
			continue
		}

		ev, err := relay.ParseEvent(frame.Event, frame.Payload)
		if err != nil {
			code := "invalid_payload"
			if errors.Is(err, relay.ErrUnknownEvent) {
				code = "unknown_event"
			}
			c.sendError(code, err.Error())
			continue
		}

		if err := c.server.service.Dispatch(c.ctx, c, ev); err != nil {
			c.sendError(errorCode(err), err.Error())
		}
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendError reports a failed event back to this connection. Persistence
// failures surface here as an explicit frame instead of disappearing into a
// process-wide error sink.
func (c *wsConn) sendError(code, message string) {
	data, err := json.Marshal(relay.Frame{
		Event: "error",
		Error: &relay.FrameError{Code: code, Message: message},
	})
	if err != nil {
		return
	}
	if !c.Enqueue(data) {
		c.server.logger.Warn("dropped error frame", "connection_id", c.id, "code", code)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrEmptyBatch):
		return "empty_batch"
	case errors.Is(err, relay.ErrUnknownEvent):
		return "unknown_event"
	default:
		return "store_error"
	}
}
