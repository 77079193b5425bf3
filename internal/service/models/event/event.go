package event

import "encoding/json"

// Type is the closed set of webhook event kinds the processor delivers.
// Anything outside the set parses to TypeUnknown and is acknowledged without
// touching order state.
type Type string

const (
	TypePaymentSucceeded Type = "payment_succeeded"
	TypePaymentFailed    Type = "payment_failed"
	TypePaymentCanceled  Type = "payment_canceled"
	TypeUnknown          Type = ""
)

func (t Type) String() string {
	return string(t)
}

func ParseType(s string) Type {
	switch Type(s) {
	case TypePaymentSucceeded, TypePaymentFailed, TypePaymentCanceled:
		return Type(s)
	default:
		return TypeUnknown
	}
}

// Data is the payload shape shared by all payment events.
type Data struct {
	IntentID    string `json:"intentId"`
	AmountCents int64  `json:"amountCents,omitempty"`
}

// Event is a signature-verified webhook notification from the processor.
type Event struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`
	Data Data   `json:"data"`
}

// Parse decodes a verified payload into an Event. The raw type string is
// collapsed onto the closed Type set.
func Parse(payload []byte) (Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data Data   `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, err
	}

	return Event{
		ID:   raw.ID,
		Type: ParseType(raw.Type),
		Data: raw.Data,
	}, nil
}
