package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scholarlink/relay/internal/messages"
	"github.com/scholarlink/relay/internal/observability"
	"github.com/scholarlink/relay/pkg/models"
)

// DefaultMaxBatch caps how many message ids are updated and re-read per
// store round trip. Larger mark-as-read batches are processed in chunks so a
// single event cannot produce one unbounded burst.
const DefaultMaxBatch = 256

// Options configures a Service.
type Options struct {
	// MaxBatch overrides DefaultMaxBatch when > 0.
	MaxBatch int
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// Service ties the registry to the message store: it dispatches decoded
// inbound events, fans out send payloads, and propagates read receipts.
type Service struct {
	registry *Registry
	store    messages.Store
	maxBatch int
	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewService creates a relay service.
func NewService(registry *Registry, store messages.Store, opts Options) *Service {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NopMetrics()
	}
	return &Service{
		registry: registry,
		store:    store,
		maxBatch: opts.MaxBatch,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
}

// Registry returns the connection registry the service delivers through.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Dispatch routes one decoded inbound event. The switch is exhaustive over
// EventKind; a kind added without a case here fails loudly instead of being
// silently ignored.
func (s *Service) Dispatch(ctx context.Context, sub Subscriber, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrUnknownEvent)
	}

	var err error
	switch ev.Kind {
	case KindJoin:
		s.registry.Join(sub, ev.Join.UserID)
	case KindSendMessage:
		s.HandleSend(ev.Send)
	case KindMarkAsRead:
		_, err = s.HandleMarkAsRead(ctx, ev.MarkAsRead.BookingID, ev.MarkAsRead.UserID, ev.MarkAsRead.MessageIDs)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.EventsTotal.WithLabelValues(string(ev.Kind), status).Inc()
	return err
}

// sendEnvelope is the subset of a send payload the relay inspects. The rest
// of the payload is opaque and forwarded verbatim.
type sendEnvelope struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
}

// HandleSend forwards a send payload to the recipient's and the sender's
// rooms. The two checks are independent: a payload missing one field still
// delivers to the other; missing both delivers nowhere and is not an error.
// The sender echo exists so every open tab or device of the sender shows the
// message immediately, without waiting for a re-fetch. Persistence of the
// row itself is the caller's concern, already done before this event fires.
func (s *Service) HandleSend(payload json.RawMessage) int {
	var env sendEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.logger.Debug("send payload not an object, no delivery", "error", err)
		return 0
	}

	delivered := 0
	if env.RecipientID != "" {
		delivered += s.registry.Deliver(env.RecipientID, EventNewMessage, payload)
	}
	if env.SenderID != "" {
		delivered += s.registry.Deliver(env.SenderID, EventNewMessage, payload)
	}
	return delivered
}

// HandleMarkAsRead flips the given message rows to read in the external
// store, re-reads their current state, and delivers a message_read event to
// each row's sender and recipient rooms. A batch of N rows produces up to 2N
// deliveries; rows sharing a sender/recipient pair are not deduplicated, and
// fan-out order follows the re-read result set, which is not sorted.
//
// Batches larger than the configured cap are processed in chunks, each with
// its own update and re-read. There is no transaction around update+reread
// and no retry; a store failure is returned to the caller.
func (s *Service) HandleMarkAsRead(ctx context.Context, bookingID, userID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, ErrEmptyBatch
	}

	ctx, span := s.tracer.Start(ctx, "relay.mark_as_read",
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
		attribute.Int("batch_size", len(messageIDs)),
	)
	defer span.End()

	start := time.Now()
	s.metrics.ReadBatchSize.Observe(float64(len(messageIDs)))

	fanned := 0
	for _, ids := range chunk(messageIDs, s.maxBatch) {
		if err := s.markRead(ctx, ids); err != nil {
			span.RecordError(err)
			return fanned, err
		}

		rows, err := s.reRead(ctx, ids)
		if err != nil {
			span.RecordError(err)
			return fanned, err
		}

		for _, row := range rows {
			data, err := json.Marshal(row)
			if err != nil {
				s.logger.Error("failed to marshal message row", "message_id", row.ID, "error", err)
				continue
			}
			if row.SenderID != "" {
				s.registry.Deliver(row.SenderID, EventMessageRead, data)
			}
			if row.RecipientID != "" {
				s.registry.Deliver(row.RecipientID, EventMessageRead, data)
			}
			fanned++
		}
	}

	s.metrics.ReadBatchDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("read receipts propagated",
		"booking_id", bookingID, "user_id", userID,
		"batch_size", len(messageIDs), "rows", fanned)
	return fanned, nil
}

func (s *Service) markRead(ctx context.Context, ids []string) error {
	start := time.Now()
	err := s.store.MarkRead(ctx, ids)
	s.observeQuery("update", start, err)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *Service) reRead(ctx context.Context, ids []string) ([]*models.Message, error) {
	start := time.Now()
	rows, err := s.store.GetByIDs(ctx, ids)
	s.observeQuery("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("re-read updated rows: %w", err)
	}
	return rows, nil
}

func (s *Service) observeQuery(op string, start time.Time, err error) {
	s.metrics.StoreQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.StoreQueryTotal.WithLabelValues(op, status).Inc()
}

// chunk splits ids into slices of at most n elements.
func chunk(ids []string, n int) [][]string {
	if len(ids) <= n {
		return [][]string{ids}
	}
	out := make([][]string, 0, (len(ids)+n-1)/n)
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return append(out, ids)
}
