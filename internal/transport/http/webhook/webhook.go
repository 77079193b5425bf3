package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopstack/checkout/internal/gateway"
)

// maxBodyBytes caps webhook payloads; processor events are small.
const maxBodyBytes = int64(65536)

// service is an interface for the service layer.
type service interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

// HandleEvent handles an inbound processor webhook delivery: processed and
// ignored outcomes are acknowledged so the processor stops redelivering, a
// signature failure is rejected, and a transient processing failure answers
// 500 so the processor redelivers. The body is kept as raw bytes because
// verification needs the exact byte stream.
func HandleEvent(w http.ResponseWriter, r *http.Request, service service) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		slog.Error("Error reading webhook request body", "error", err)

		return
	}

	sigHeader := r.Header.Get("Gateway-Signature")

	if err := service.Process(r.Context(), payload, sigHeader); err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			http.Error(w, "invalid signature", http.StatusBadRequest)
			slog.Warn("Rejected webhook delivery with invalid signature")

			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error processing webhook delivery", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]bool{"received": true}); err != nil {
		slog.Error("Error sending response for webhook", "error", err)
	}
}
