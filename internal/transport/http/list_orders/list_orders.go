package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"

	"github.com/shopstack/checkout/internal/service/models/order"
)

type service interface {
	GetOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}

type queryOrdersRequest struct {
	Ids    []string `schema:"ids,omitempty"`
	Limit  int      `schema:"limit,omitempty"`
	Offset int      `schema:"offset,omitempty"`
}

// ListOrders handles the list orders request, scoped to the calling owner.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	ownerID := r.Header.Get("X-Owner-Id")
	if ownerID == "" {
		http.Error(w, "missing owner", http.StatusUnauthorized)
		slog.Error("List orders request without owner id")

		return
	}

	decoder := schema.NewDecoder()
	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	orders, err := service.GetOrders(r.Context(), &order.QueryOrdersModel{
		Ids:      query.Ids,
		OwnerIds: []string{ownerID},
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error getting orders", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}
