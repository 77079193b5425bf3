package iorderrepo

import (
	"context"

	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
)

// IOrderRepository is the order store contract. Implementations must make
// AttachGatewayIntent and TransitionPaymentState linearizable per order id.
type IOrderRepository interface {
	// CreatePending persists a new order in the pending state together with
	// its frozen line items.
	CreatePending(
		ctx context.Context,
		ownerID string,
		items []lineitem.LineItem,
		totalPriceCents int64,
	) (order.Order, error)

	// AttachGatewayIntent binds the gateway correlation id to the order.
	// Attaching the same intent id twice is a no-op; a different id fails
	// with order.ErrAlreadyAttached.
	AttachGatewayIntent(ctx context.Context, orderID, intentID string) (order.Order, error)

	// TransitionPaymentState moves the order to target via compare-and-set.
	// It is a no-op returning the current order when the order already is in
	// target or in any terminal state.
	TransitionPaymentState(
		ctx context.Context,
		orderID string,
		target order.PaymentState,
	) (order.Order, error)

	// FindByGatewayIntentID resolves the order an inbound webhook event
	// correlates to.
	FindByGatewayIntentID(ctx context.Context, intentID string) (order.Order, error)

	// GetByID returns a single order.
	GetByID(ctx context.Context, orderID string) (order.Order, error)

	// Query retrieves orders based on filter criteria.
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}
