package checkoutsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopstack/checkout/internal/dal/repositories/order/memory"
	"github.com/shopstack/checkout/internal/gateway"
	"github.com/shopstack/checkout/internal/service/amount"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
)

type fakeGateway struct {
	intent   gateway.Intent
	err      error
	requests []gateway.AuthorizeRequest
}

func (f *fakeGateway) Authorize(
	_ context.Context,
	req gateway.AuthorizeRequest,
) (gateway.Intent, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return gateway.Intent{}, f.err
	}

	return f.intent, nil
}

func cartLines() []lineitem.LineItem {
	return []lineitem.LineItem{
		{ProductRef: "sku-1", Quantity: 2, UnitPriceCents: 500},
		{ProductRef: "sku-2", Quantity: 1, UnitPriceCents: 1000},
	}
}

func TestCreateIntent(t *testing.T) {
	repo := memory.NewOrderRepository()
	gw := &fakeGateway{intent: gateway.Intent{ID: "pi_123", ClientSecret: "pi_123_secret"}}
	svc := MustNewCheckoutService(WithOrderRepository(repo), WithGateway(gw))

	checkout, err := svc.CreateIntent(context.Background(), "owner-1", cartLines())
	require.NoError(t, err)

	assert.NotEmpty(t, checkout.OrderID)
	assert.Equal(t, "pi_123", checkout.GatewayIntentID)
	assert.Equal(t, "pi_123_secret", checkout.ContinuationToken)

	// The order is pending with the intent attached and the frozen total.
	persisted, err := repo.GetByID(context.Background(), checkout.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatePending, persisted.PaymentState)
	assert.Equal(t, "pi_123", persisted.GatewayIntentID)
	assert.Equal(t, int64(2000), persisted.TotalPriceCents)

	// The gateway saw the computed amount and the correlation metadata.
	require.Len(t, gw.requests, 1)
	assert.Equal(t, int64(2000), gw.requests[0].AmountCents)
	assert.Equal(t, checkout.OrderID, gw.requests[0].Metadata["order_id"])
	assert.Equal(t, "owner-1", gw.requests[0].Metadata["owner_id"])
}

func TestCreateIntentEmptyCart(t *testing.T) {
	repo := memory.NewOrderRepository()
	gw := &fakeGateway{}
	svc := MustNewCheckoutService(WithOrderRepository(repo), WithGateway(gw))

	_, err := svc.CreateIntent(context.Background(), "owner-1", nil)
	assert.ErrorIs(t, err, order.ErrValidation)
	assert.Empty(t, gw.requests)
}

func TestCreateIntentInvalidLines(t *testing.T) {
	repo := memory.NewOrderRepository()
	gw := &fakeGateway{}
	svc := MustNewCheckoutService(WithOrderRepository(repo), WithGateway(gw))

	_, err := svc.CreateIntent(context.Background(), "owner-1", []lineitem.LineItem{
		{ProductRef: "sku-1", Quantity: 0, UnitPriceCents: 100},
	})
	assert.ErrorIs(t, err, amount.ErrInvalidInput)

	// Nothing was persisted and the gateway was never contacted.
	orders, err := repo.Query(context.Background(), &order.QueryOrdersModel{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, gw.requests)
}

func TestCreateIntentGatewayFailureLeavesOrderPending(t *testing.T) {
	repo := memory.NewOrderRepository()
	gw := &fakeGateway{err: &gateway.GatewayError{Retryable: true, Err: errors.New("timeout")}}
	svc := MustNewCheckoutService(WithOrderRepository(repo), WithGateway(gw))

	_, err := svc.CreateIntent(context.Background(), "owner-1", cartLines())

	var gatewayErr *gateway.GatewayError
	require.True(t, errors.As(err, &gatewayErr))
	assert.True(t, gatewayErr.Retryable)

	// The order was persisted before the gateway call and stays pending with
	// no intent attached.
	orders, err := repo.Query(context.Background(), &order.QueryOrdersModel{
		OwnerIds: []string{"owner-1"},
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.PaymentStatePending, orders[0].PaymentState)
	assert.Empty(t, orders[0].GatewayIntentID)
}
