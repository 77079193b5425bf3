package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopstack/checkout/internal/service/models/currency"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
)

// OrderRepository is an in-memory order store with the same compare-and-set
// contract as the Postgres repository. Used by tests and local runs.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]order.Order
	byIntent map[string]string
}

// NewOrderRepository creates a new in-memory order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]order.Order),
		byIntent: make(map[string]string),
	}
}

// CreatePending stores a new order in the pending state.
func (r *OrderRepository) CreatePending(
	_ context.Context,
	ownerID string,
	items []lineitem.LineItem,
	totalPriceCents int64,
) (order.Order, error) {
	if ownerID == "" || len(items) == 0 || totalPriceCents < 0 {
		return order.Order{}, order.ErrValidation
	}

	now := time.Now().UTC()
	o := order.Order{
		ID:                 uuid.NewString(),
		OwnerID:            ownerID,
		LineItems:          append([]lineitem.LineItem(nil), items...),
		TotalPriceCents:    totalPriceCents,
		TotalPriceCurrency: currency.CurrencyUSD,
		PaymentState:       order.PaymentStatePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o

	return o, nil
}

// AttachGatewayIntent binds the intent id if the order has none yet.
func (r *OrderRepository) AttachGatewayIntent(
	_ context.Context,
	orderID, intentID string,
) (order.Order, error) {
	if orderID == "" || intentID == "" {
		return order.Order{}, order.ErrValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}

	if o.GatewayIntentID != "" {
		if o.GatewayIntentID == intentID {
			return o, nil
		}

		return order.Order{}, order.ErrAlreadyAttached
	}

	o.GatewayIntentID = intentID
	o.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = o
	r.byIntent[intentID] = orderID

	return o, nil
}

// TransitionPaymentState applies the terminal transition at most once.
func (r *OrderRepository) TransitionPaymentState(
	_ context.Context,
	orderID string,
	target order.PaymentState,
) (order.Order, error) {
	if _, err := order.ParsePaymentState(target.String()); err != nil {
		return order.Order{}, order.ErrValidation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}

	// Terminal states and repeated targets are a no-op, never an error.
	if o.PaymentState.IsTerminal() || o.PaymentState == target {
		return o, nil
	}

	o.PaymentState = target
	o.UpdatedAt = time.Now().UTC()
	r.orders[orderID] = o

	return o, nil
}

// FindByGatewayIntentID resolves an order from its gateway correlation id.
func (r *OrderRepository) FindByGatewayIntentID(
	_ context.Context,
	intentID string,
) (order.Order, error) {
	if intentID == "" {
		return order.Order{}, order.ErrValidation
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.byIntent[intentID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}

	return r.orders[orderID], nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(_ context.Context, orderID string) (order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}

	return o, nil
}

// Query retrieves orders based on filter criteria.
func (r *OrderRepository) Query(
	_ context.Context,
	filter *order.QueryOrdersModel,
) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []order.Order{}
	for _, o := range r.orders {
		if len(filter.Ids) > 0 && !contains(filter.Ids, o.ID) {
			continue
		}
		if len(filter.OwnerIds) > 0 && !contains(filter.OwnerIds, o.OwnerID) {
			continue
		}
		result = append(result, o)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []order.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}

	return false
}
