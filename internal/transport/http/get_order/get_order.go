package getorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopstack/checkout/internal/service/models/order"
)

type service interface {
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
}

// GetOrder handles the single order status request.
func GetOrder(w http.ResponseWriter, r *http.Request, service service) {
	ownerID := r.Header.Get("X-Owner-Id")
	if ownerID == "" {
		http.Error(w, "missing owner", http.StatusUnauthorized)
		slog.Error("Get order request without owner id")

		return
	}

	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "order id is required", http.StatusBadRequest)

		return
	}

	found, err := service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)

			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error getting order", "error", err)

		return
	}

	// Orders are visible to their owner only.
	if found.OwnerID != ownerID {
		http.Error(w, "order not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(found); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}
