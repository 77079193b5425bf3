package reconcilersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/shopstack/checkout/internal/dal/interfaces/iorderrepo"
	"github.com/shopstack/checkout/internal/dal/interfaces/ioutboxrepo"
	"github.com/shopstack/checkout/internal/gateway"
	"github.com/shopstack/checkout/internal/service/models/event"
	"github.com/shopstack/checkout/internal/service/models/order"
	"github.com/shopstack/checkout/internal/service/models/outbox"
)

// signatureVerifier is the slice of the gateway client the reconciler needs.
type signatureVerifier interface {
	VerifyEventSignature(payload []byte, sigHeader, secret string) (event.Event, error)
	WebhookSecret() string
}

// dedupeCache remembers processed event ids. Best effort: the order store's
// compare-and-set keeps duplicates harmless even when the cache is down.
type dedupeCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Key(operation, key string) string
}

// ReconcilerService advances order state from asynchronous processor events.
// Delivery is at-least-once and unordered; the effect on an order is at most
// once.
type ReconcilerService struct {
	orderRepo  iorderrepo.IOrderRepository
	gateway    signatureVerifier
	outboxRepo ioutboxrepo.IOutboxRepository // nil-safe: publication skipped if nil
	cache      dedupeCache                   // nil-safe: dedupe skipped if nil
}

// option is a function that configures the ReconcilerService.
type option func(*ReconcilerService)

// MustNewReconcilerService creates a new ReconcilerService.
func MustNewReconcilerService(opts ...option) *ReconcilerService {
	s := &ReconcilerService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil {
		panic("reconcilersvc: order repository is required")
	}
	if s.gateway == nil {
		panic("reconcilersvc: gateway verifier is required")
	}

	return s
}

// WithOrderRepository sets the order repository for the ReconcilerService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *ReconcilerService) {
		s.orderRepo = repo
	}
}

// WithGateway sets the signature verifier for the ReconcilerService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw signatureVerifier) option {
	return func(s *ReconcilerService) {
		s.gateway = gw
	}
}

// WithOutboxRepository sets the outbox used to announce terminal transitions.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOutboxRepository(repo ioutboxrepo.IOutboxRepository) option {
	return func(s *ReconcilerService) {
		s.outboxRepo = repo
	}
}

// WithDedupeCache sets the processed-event cache.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDedupeCache(cache dedupeCache) option {
	return func(s *ReconcilerService) {
		s.cache = cache
	}
}

// Process authenticates and applies one webhook delivery.
//
// A signature failure propagates so the transport rejects the delivery; a
// transient store failure propagates so the processor redelivers. Every
// outcome that cannot change anything here, now or on redelivery, is
// acknowledged. Duplicate and reordered deliveries are safe: the transition
// is a compare-and-set and terminal states are never overwritten.
func (s *ReconcilerService) Process(ctx context.Context, payload []byte, sigHeader string) error {
	ctx, span := otel.Tracer("checkout").Start(ctx, "ReconcilerService.Process")
	defer span.End()

	evt, err := s.gateway.VerifyEventSignature(payload, sigHeader, s.gateway.WebhookSecret())
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			return err
		}

		// Verified bytes that do not parse as an event cannot be processed;
		// a redelivery of the same bytes cannot either.
		slog.ErrorContext(ctx, "Dropping verified but unparseable webhook payload", "error", err)

		return nil
	}

	if evt.Type == event.TypeUnknown {
		slog.InfoContext(ctx, "Ignoring webhook event of unrecognized type", "event_id", evt.ID)

		return nil
	}

	if s.seenBefore(ctx, evt) {
		slog.InfoContext(ctx, "Skipping duplicate webhook event", "event_id", evt.ID)

		return nil
	}

	target := order.PaymentStateFailed
	if evt.Type == event.TypePaymentSucceeded {
		target = order.PaymentStatePaid
	}

	resolved, err := s.orderRepo.FindByGatewayIntentID(ctx, evt.Data.IntentID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// An event for an order outside this system's bookkeeping is
			// unrecoverable locally; acknowledging stops the retry loop.
			slog.WarnContext(ctx, "Webhook event for unknown gateway intent",
				"event_id", evt.ID,
				"intent_id", evt.Data.IntentID,
			)

			return nil
		}

		return fmt.Errorf("failed to resolve order for event %s: %w", evt.ID, err)
	}

	if resolved.PaymentState.IsTerminal() {
		slog.InfoContext(ctx, "Order already settled, webhook event is a no-op",
			"event_id", evt.ID,
			"order_id", resolved.ID,
			"payment_state", resolved.PaymentState,
		)
		s.markSeen(ctx, evt)

		return nil
	}

	updated, err := s.orderRepo.TransitionPaymentState(ctx, resolved.ID, target)
	if err != nil {
		return fmt.Errorf("failed to transition order %s: %w", resolved.ID, err)
	}

	if updated.PaymentState != target {
		// Lost the race against a concurrent delivery; its outcome stands.
		slog.InfoContext(ctx, "Order settled concurrently, webhook event is a no-op",
			"event_id", evt.ID,
			"order_id", updated.ID,
			"payment_state", updated.PaymentState,
		)
		s.markSeen(ctx, evt)

		return nil
	}

	slog.InfoContext(ctx, "Order payment state reconciled",
		"event_id", evt.ID,
		"order_id", updated.ID,
		"payment_state", updated.PaymentState,
	)

	s.markSeen(ctx, evt)
	s.enqueueStateChanged(ctx, updated)

	return nil
}

// seenBefore consults the dedupe cache without mutating it. Cache failures
// count as unseen.
func (s *ReconcilerService) seenBefore(ctx context.Context, evt event.Event) bool {
	if s.cache == nil || evt.ID == "" {
		return false
	}

	seen, err := s.cache.Seen(ctx, s.cache.Key("webhook-event", evt.ID))
	if err != nil {
		slog.WarnContext(ctx, "Event dedupe cache unavailable", "event_id", evt.ID, "error", err)

		return false
	}

	return seen
}

// markSeen records the event id only once its effect is durable. Marking any
// earlier would let a redelivery after a transient store failure be skipped as
// a duplicate while the order is still pending.
func (s *ReconcilerService) markSeen(ctx context.Context, evt event.Event) {
	if s.cache == nil || evt.ID == "" {
		return
	}

	ttlSeconds := viper.GetInt("redis.event_dedupe_ttl_seconds")
	if ttlSeconds == 0 {
		ttlSeconds = 86400
	}

	if _, err := s.cache.Remember(
		ctx,
		s.cache.Key("webhook-event", evt.ID),
		time.Duration(ttlSeconds)*time.Second,
	); err != nil {
		slog.WarnContext(ctx, "Failed to record processed event id", "event_id", evt.ID, "error", err)
	}
}

// enqueueStateChanged records the terminal transition in the outbox for
// downstream consumers. Publication is at-least-once; consumers dedupe.
func (s *ReconcilerService) enqueueStateChanged(ctx context.Context, o order.Order) {
	if s.outboxRepo == nil {
		return
	}

	payload, err := json.Marshal(outbox.OrderStateChanged{
		OrderID:         o.ID,
		OwnerID:         o.OwnerID,
		PaymentState:    o.PaymentState.String(),
		GatewayIntentID: o.GatewayIntentID,
		TotalPriceCents: o.TotalPriceCents,
		OccurredAt:      o.UpdatedAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal order state change", "order_id", o.ID, "error", err)

		return
	}

	now := time.Now()
	msg := outbox.Message{
		QueueName:   viper.GetString("rabbitmq.order_events_queue"),
		RoutingKey:  fmt.Sprintf("checkout.order.%s", o.PaymentState),
		Payload:     payload,
		ContentType: "application/json",
		MaxRetries:  10,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}

	if err := s.outboxRepo.Insert(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue order state change",
			"order_id", o.ID,
			"error", err,
		)
	}
}
