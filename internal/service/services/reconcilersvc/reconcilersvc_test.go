package reconcilersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopstack/checkout/internal/dal/repositories/order/memory"
	"github.com/shopstack/checkout/internal/gateway"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
	"github.com/shopstack/checkout/internal/service/models/outbox"
)

const testSecret = "whsec_test"

type memoryOutbox struct {
	mu       sync.Mutex
	messages []outbox.Message
}

func (m *memoryOutbox) Insert(_ context.Context, msg outbox.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)

	return nil
}

func (m *memoryOutbox) GetPendingMessages(_ context.Context, _ int) ([]outbox.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]outbox.Message(nil), m.messages...), nil
}

func (m *memoryOutbox) Delete(_ context.Context, _ int64) error { return nil }

func (m *memoryOutbox) UpdateRetry(
	_ context.Context, _ int64, _ int, _ string, _ time.Time,
) error {
	return nil
}

type memoryCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{seen: make(map[string]bool)}
}

func (c *memoryCache) Seen(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seen[key], nil
}

func (c *memoryCache) Remember(_ context.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return false, nil
	}
	c.seen[key] = true

	return true, nil
}

// flakyOrderRepository fails a configured number of transitions before
// behaving normally, mimicking a store outage during webhook processing.
type flakyOrderRepository struct {
	*memory.OrderRepository
	mu       sync.Mutex
	failures int
}

func (r *flakyOrderRepository) TransitionPaymentState(
	ctx context.Context,
	orderID string,
	target order.PaymentState,
) (order.Order, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()

		return order.Order{}, errors.New("connection reset by peer")
	}
	r.mu.Unlock()

	return r.OrderRepository.TransitionPaymentState(ctx, orderID, target)
}

func (c *memoryCache) Key(operation, key string) string {
	return fmt.Sprintf("test:%s:%s", operation, key)
}

type fixture struct {
	svc    *ReconcilerService
	repo   *memory.OrderRepository
	outbox *memoryOutbox
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	repo := memory.NewOrderRepository()
	ob := &memoryOutbox{}
	gw := gateway.NewClient(nil, "http://gateway.local", "sk_test", testSecret)

	all := append([]option{
		WithOrderRepository(repo),
		WithGateway(gw),
		WithOutboxRepository(ob),
	}, opts...)

	return &fixture{
		svc:    MustNewReconcilerService(all...),
		repo:   repo,
		outbox: ob,
	}
}

func (f *fixture) createOrderWithIntent(t *testing.T, intentID string) order.Order {
	t.Helper()

	o, err := f.repo.CreatePending(context.Background(), "owner-1", []lineitem.LineItem{
		{ProductRef: "sku-1", Quantity: 2, UnitPriceCents: 500},
		{ProductRef: "sku-2", Quantity: 1, UnitPriceCents: 1000},
	}, 2000)
	require.NoError(t, err)

	attached, err := f.repo.AttachGatewayIntent(context.Background(), o.ID, intentID)
	require.NoError(t, err)

	return attached
}

func signedEvent(t *testing.T, id, eventType, intentID string) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"intentId": intentID},
	})
	require.NoError(t, err)

	return payload, gateway.SignatureHeader(time.Now(), payload, testSecret)
}

func TestProcessPaymentSucceeded(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	payload, header := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	require.NoError(t, f.svc.Process(context.Background(), payload, header))

	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePaid, updated.PaymentState)

	// The terminal transition was announced exactly once.
	require.Len(t, f.outbox.messages, 1)
	var announced outbox.OrderStateChanged
	require.NoError(t, json.Unmarshal(f.outbox.messages[0].Payload, &announced))
	assert.Equal(t, o.ID, announced.OrderID)
	assert.Equal(t, "paid", announced.PaymentState)
	assert.Equal(t, "pi_123", announced.GatewayIntentID)
}

func TestProcessPaymentFailedVariants(t *testing.T) {
	for _, eventType := range []string{"payment_failed", "payment_canceled"} {
		t.Run(eventType, func(t *testing.T) {
			f := newFixture(t)
			o := f.createOrderWithIntent(t, "pi_123")

			payload, header := signedEvent(t, "evt_1", eventType, "pi_123")
			require.NoError(t, f.svc.Process(context.Background(), payload, header))

			updated, err := f.repo.GetByID(context.Background(), o.ID)
			require.NoError(t, err)
			assert.Equal(t, order.PaymentStateFailed, updated.PaymentState)
		})
	}
}

func TestProcessDuplicateDeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	payload, header := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	require.NoError(t, f.svc.Process(context.Background(), payload, header))
	require.NoError(t, f.svc.Process(context.Background(), payload, header))

	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePaid, updated.PaymentState)
	assert.Len(t, f.outbox.messages, 1)
}

func TestProcessConflictingDeliveriesKeepFirstOutcome(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	succeeded, succeededHeader := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	failed, failedHeader := signedEvent(t, "evt_2", "payment_failed", "pi_123")

	require.NoError(t, f.svc.Process(context.Background(), succeeded, succeededHeader))
	require.NoError(t, f.svc.Process(context.Background(), failed, failedHeader))

	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePaid, updated.PaymentState)

	// The losing delivery did not announce anything.
	assert.Len(t, f.outbox.messages, 1)
}

func TestProcessUnknownIntentIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.createOrderWithIntent(t, "pi_123")

	payload, header := signedEvent(t, "evt_1", "payment_succeeded", "pi_unknown")
	assert.NoError(t, f.svc.Process(context.Background(), payload, header))
	assert.Empty(t, f.outbox.messages)
}

func TestProcessUnknownEventTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	payload, header := signedEvent(t, "evt_1", "charge.refunded", "pi_123")
	require.NoError(t, f.svc.Process(context.Background(), payload, header))

	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePending, updated.PaymentState)
}

func TestProcessInvalidSignatureRejects(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	payload, _ := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	wrongHeader := gateway.SignatureHeader(time.Now(), payload, "whsec_other")

	err := f.svc.Process(context.Background(), payload, wrongHeader)
	assert.ErrorIs(t, err, gateway.ErrSignatureInvalid)

	// No state change happened.
	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePending, updated.PaymentState)
	assert.Empty(t, f.outbox.messages)
}

// A transient store failure must not poison the dedupe cache: the processor
// redelivers, and the retry has to go through even with the cache wired.
func TestProcessRedeliveryAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyOrderRepository{OrderRepository: memory.NewOrderRepository(), failures: 1}
	ob := &memoryOutbox{}
	cache := newMemoryCache()
	gw := gateway.NewClient(nil, "http://gateway.local", "sk_test", testSecret)

	svc := MustNewReconcilerService(
		WithOrderRepository(repo),
		WithGateway(gw),
		WithOutboxRepository(ob),
		WithDedupeCache(cache),
	)

	o, err := repo.CreatePending(ctx, "owner-1", []lineitem.LineItem{
		{ProductRef: "sku-1", Quantity: 1, UnitPriceCents: 500},
	}, 500)
	require.NoError(t, err)
	_, err = repo.AttachGatewayIntent(ctx, o.ID, "pi_123")
	require.NoError(t, err)

	payload, header := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")

	// The first delivery hits the outage and surfaces an error, so the
	// processor will redeliver. Nothing is announced or marked as processed.
	require.Error(t, svc.Process(ctx, payload, header))

	pending, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePending, pending.PaymentState)
	assert.Empty(t, ob.messages)

	// The redelivery of the identical event settles the order.
	require.NoError(t, svc.Process(ctx, payload, header))

	paid, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePaid, paid.PaymentState)
	assert.Len(t, ob.messages, 1)
}

func TestProcessDedupeCacheSkipsRepeats(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, WithDedupeCache(cache))
	o := f.createOrderWithIntent(t, "pi_123")

	payload, header := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	require.NoError(t, f.svc.Process(context.Background(), payload, header))
	require.NoError(t, f.svc.Process(context.Background(), payload, header))

	updated, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePaid, updated.PaymentState)
	assert.Len(t, f.outbox.messages, 1)
}

func TestProcessConcurrentMixedDeliveries(t *testing.T) {
	f := newFixture(t)
	o := f.createOrderWithIntent(t, "pi_123")

	succeeded, succeededHeader := signedEvent(t, "evt_1", "payment_succeeded", "pi_123")
	failed, failedHeader := signedEvent(t, "evt_2", "payment_failed", "pi_123")

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		payload, header := succeeded, succeededHeader
		if i%2 == 1 {
			payload, header = failed, failedHeader
		}
		go func(payload []byte, header string) {
			defer wg.Done()
			assert.NoError(t, f.svc.Process(context.Background(), payload, header))
		}(payload, header)
	}
	wg.Wait()

	final, err := f.repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, final.PaymentState.IsTerminal())
}
