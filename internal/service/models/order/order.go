package order

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/shopstack/checkout/internal/service/models/currency"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
)

var (
	// ErrNotFound is returned when no order matches the given id or intent id.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyAttached is returned when a different gateway intent id is
	// already bound to the order.
	ErrAlreadyAttached = errors.New("gateway intent already attached")

	// ErrValidation is returned on malformed input to a store operation.
	ErrValidation = errors.New("invalid order input")

	ErrInvalidPaymentState = errors.New("invalid payment state")
)

// PaymentState is the lifecycle state of an order's payment.
// Pending is the sole initial state; Paid and Failed are terminal.
type PaymentState string

const (
	PaymentStatePending PaymentState = "pending"
	PaymentStatePaid    PaymentState = "paid"
	PaymentStateFailed  PaymentState = "failed"
)

func (s PaymentState) String() string {
	return string(s)
}

func (s PaymentState) Value() (driver.Value, error) {
	return s.String(), nil
}

// IsTerminal reports whether no further transition is permitted out of s.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentStatePaid || s == PaymentStateFailed
}

func ParsePaymentState(s string) (PaymentState, error) {
	switch s {
	case PaymentStatePending.String():
		return PaymentStatePending, nil
	case PaymentStatePaid.String():
		return PaymentStatePaid, nil
	case PaymentStateFailed.String():
		return PaymentStateFailed, nil
	default:
		return "", ErrInvalidPaymentState
	}
}

// Order represents a checkout order in the system.
//
// TotalPriceCents and LineItems are frozen at creation time. GatewayIntentID is
// set at most once, right after creation. PaymentState is mutated at most once,
// to a terminal state.
type Order struct {
	ID                 string              `json:"id"`
	OwnerID            string              `json:"ownerId"`
	LineItems          []lineitem.LineItem `json:"lineItems"`
	TotalPriceCents    int64               `json:"totalPriceCents"`
	TotalPriceCurrency currency.Currency   `json:"totalPriceCurrency"`
	PaymentState       PaymentState        `json:"paymentState"`
	GatewayIntentID    string              `json:"gatewayIntentId,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}
