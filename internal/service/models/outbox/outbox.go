package outbox

import (
	"time"
)

// Message represents an event awaiting publication to RabbitMQ.
type Message struct {
	ID           int64
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Payload      []byte
	ContentType  string
	RetryCount   int
	MaxRetries   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	NextRetryAt  time.Time
}

// OrderStateChanged is the payload published when an order reaches a terminal
// payment state.
type OrderStateChanged struct {
	OrderID         string    `json:"orderId"`
	OwnerID         string    `json:"ownerId"`
	PaymentState    string    `json:"paymentState"`
	GatewayIntentID string    `json:"gatewayIntentId"`
	TotalPriceCents int64     `json:"totalPriceCents"`
	OccurredAt      time.Time `json:"occurredAt"`
}
