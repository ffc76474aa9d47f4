// Package gateway exposes the relay over websocket and HTTP: the /ws
// endpoint clients connect to, plus health and metrics surfaces.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scholarlink/relay/internal/config"
	"github.com/scholarlink/relay/internal/observability"
	"github.com/scholarlink/relay/internal/relay"
)

// Server serves the websocket endpoint and the operational HTTP surfaces.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	service *relay.Service

	upgrader   websocket.Upgrader
	sendBuffer int

	httpServer   *http.Server
	httpListener net.Listener
	startTime    time.Time
}

// NewServer creates a gateway server around the relay service.
func NewServer(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, service *relay.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	sendBuffer := cfg.Relay.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		sendBuffer: sendBuffer,
		startTime:  time.Now(),
	}
}

// Handler returns the HTTP handler serving /ws, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start begins serving on the configured address. It returns once the
// listener is bound; serving continues in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Server.Addr()

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
// Live websocket connections are closed by the server teardown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snapshot := map[string]any{
		"status":    "ok",
		"uptime_ms": time.Since(s.startTime).Milliseconds(),
		"rooms":     s.service.Registry().Rooms(),
		"store":     s.cfg.Store.Driver,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.logger.Error("failed to write health snapshot", "error", err)
	}
}
