package createintent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/shopstack/checkout/internal/service/amount"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
	"github.com/shopstack/checkout/internal/service/services/checkoutsvc"
)

// service is an interface for the service layer.
type service interface {
	CreateIntent(
		ctx context.Context,
		ownerID string,
		lines []lineitem.LineItem,
	) (checkoutsvc.Checkout, error)
}

// itemInCreateIntentRequest represents a cart line in a create intent request.
type itemInCreateIntentRequest struct {
	ProductRef     string `json:"productRef"     validate:"required"`
	Quantity       int64  `json:"quantity"       validate:"gt=0"`
	UnitPriceCents int64  `json:"unitPriceCents" validate:"gte=0"`
}

// createIntentRequest represents a create intent request.
type createIntentRequest struct {
	Items []itemInCreateIntentRequest `json:"items" validate:"required,min=1,dive"`
}

func (r *createIntentRequest) toModel() []lineitem.LineItem {
	lines := make([]lineitem.LineItem, len(r.Items))
	for i, item := range r.Items {
		lines[i] = lineitem.LineItem{
			ProductRef:     item.ProductRef,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	return lines
}

// createIntentResponse is returned to the storefront so it can continue the
// payment client-side.
type createIntentResponse struct {
	ContinuationToken string `json:"continuationToken"`
	OrderID           string `json:"orderId"`
}

// CreateIntent handles the create payment intent request. The owner id is
// injected by the external auth middleware.
func CreateIntent(w http.ResponseWriter, r *http.Request, service service) {
	ownerID := r.Header.Get("X-Owner-Id")
	if ownerID == "" {
		http.Error(w, "missing owner", http.StatusUnauthorized)
		slog.Error("Create intent request without owner id")

		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to decode request body", http.StatusBadRequest)
		slog.Error("Error decoding request body for create intent", "error", err)

		return
	}

	if err := validator.New().Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error validating request body for create intent", "error", err)

		return
	}

	checkout, err := service.CreateIntent(r.Context(), ownerID, req.toModel())
	if err != nil {
		// Gateway failures surface as 500 like every other server-side fault.
		status := http.StatusInternalServerError
		if errors.Is(err, order.ErrValidation) || errors.Is(err, amount.ErrInvalidInput) {
			status = http.StatusBadRequest
		}

		http.Error(w, err.Error(), status)
		slog.Error("Error creating payment intent", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(createIntentResponse{
		ContinuationToken: checkout.ContinuationToken,
		OrderID:           checkout.OrderID,
	}); err != nil {
		slog.Error("Error sending response for create intent", "error", err)
	}
}
