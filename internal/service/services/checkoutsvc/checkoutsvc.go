package checkoutsvc

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/shopstack/checkout/internal/dal/interfaces/iorderrepo"
	"github.com/shopstack/checkout/internal/gateway"
	"github.com/shopstack/checkout/internal/service/amount"
	"github.com/shopstack/checkout/internal/service/models/currency"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
)

// paymentGateway is the slice of the gateway client the orchestrator needs.
type paymentGateway interface {
	Authorize(ctx context.Context, req gateway.AuthorizeRequest) (gateway.Intent, error)
}

// Checkout is what the storefront needs to continue the payment client-side.
type Checkout struct {
	OrderID           string `json:"orderId"`
	GatewayIntentID   string `json:"gatewayIntentId"`
	ContinuationToken string `json:"continuationToken"`
}

// CheckoutService creates pending orders and requests payment authorization,
// binding the two via the gateway intent id.
type CheckoutService struct {
	orderRepo iorderrepo.IOrderRepository
	gateway   paymentGateway
}

// option is a function that configures the CheckoutService.
type option func(*CheckoutService)

// MustNewCheckoutService creates a new CheckoutService.
func MustNewCheckoutService(opts ...option) *CheckoutService {
	s := &CheckoutService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil {
		panic("checkoutsvc: order repository is required")
	}
	if s.gateway == nil {
		panic("checkoutsvc: payment gateway is required")
	}

	return s
}

// WithOrderRepository sets the order repository for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *CheckoutService) {
		s.orderRepo = repo
	}
}

// WithGateway sets the payment gateway client for the CheckoutService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw paymentGateway) option {
	return func(s *CheckoutService) {
		s.gateway = gw
	}
}

// CreateIntent converts a cart into a pending order and requests authorization
// from the processor.
//
// The order is persisted before the gateway is contacted. If authorization
// fails after persistence the order stays pending with no intent attached and
// the caller retries intent creation for the same cart; the reverse ordering
// would risk an authorized charge with no corresponding order.
func (s *CheckoutService) CreateIntent(
	ctx context.Context,
	ownerID string,
	lines []lineitem.LineItem,
) (Checkout, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "CheckoutService.CreateIntent")
	defer span.End()

	if ownerID == "" || len(lines) == 0 {
		return Checkout{}, order.ErrValidation
	}

	totalCents, err := amount.Total(lines)
	if err != nil {
		return Checkout{}, err
	}

	pending, err := s.orderRepo.CreatePending(ctx, ownerID, lines, totalCents)
	if err != nil {
		return Checkout{}, fmt.Errorf("failed to create pending order: %w", err)
	}

	intent, err := s.gateway.Authorize(ctx, gateway.AuthorizeRequest{
		AmountCents: totalCents,
		Currency:    currency.CurrencyUSD,
		Metadata: map[string]string{
			"order_id": pending.ID,
			"owner_id": ownerID,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "Payment authorization failed, order stays pending",
			"order_id", pending.ID,
			"error", err,
		)

		return Checkout{}, fmt.Errorf("failed to authorize payment: %w", err)
	}

	if _, err := s.orderRepo.AttachGatewayIntent(ctx, pending.ID, intent.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to attach gateway intent to order",
			"order_id", pending.ID,
			"intent_id", intent.ID,
			"error", err,
		)

		return Checkout{}, fmt.Errorf("failed to attach gateway intent: %w", err)
	}

	slog.InfoContext(ctx, "Payment intent created",
		"order_id", pending.ID,
		"intent_id", intent.ID,
		"amount_cents", totalCents,
	)

	return Checkout{
		OrderID:           pending.ID,
		GatewayIntentID:   intent.ID,
		ContinuationToken: intent.ClientSecret,
	}, nil
}

// GetOrder returns a single order.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

// GetOrders retrieves orders based on filter.
func (s *CheckoutService) GetOrders(
	ctx context.Context,
	filter *order.QueryOrdersModel,
) ([]order.Order, error) {
	return s.orderRepo.Query(ctx, filter)
}
