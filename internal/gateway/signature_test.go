package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopstack/checkout/internal/service/models/event"
)

const testSecret = "whsec_test"

func testClient() *Client {
	return NewClient(nil, "http://gateway.local", "sk_test", testSecret)
}

func TestVerifyEventSignature(t *testing.T) {
	client := testClient()
	payload := []byte(`{"id":"evt_1","type":"payment_succeeded","data":{"intentId":"pi_123"}}`)
	header := SignatureHeader(time.Now(), payload, testSecret)

	evt, err := client.VerifyEventSignature(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, event.TypePaymentSucceeded, evt.Type)
	assert.Equal(t, "pi_123", evt.Data.IntentID)
}

func TestVerifyEventSignatureUnknownType(t *testing.T) {
	client := testClient()
	payload := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"intentId":"pi_123"}}`)
	header := SignatureHeader(time.Now(), payload, testSecret)

	evt, err := client.VerifyEventSignature(payload, header, testSecret)
	require.NoError(t, err)
	assert.Equal(t, event.TypeUnknown, evt.Type)
}

func TestVerifyEventSignatureRejects(t *testing.T) {
	client := testClient()
	payload := []byte(`{"id":"evt_1","type":"payment_succeeded","data":{"intentId":"pi_123"}}`)

	tests := []struct {
		name   string
		header string
	}{
		{
			name:   "empty header",
			header: "",
		},
		{
			name:   "garbage header",
			header: "not-a-signature",
		},
		{
			name:   "wrong secret",
			header: SignatureHeader(time.Now(), payload, "whsec_other"),
		},
		{
			name:   "tampered payload",
			header: SignatureHeader(time.Now(), []byte(`{"id":"evt_1","type":"payment_failed"}`), testSecret),
		},
		{
			name:   "stale timestamp",
			header: SignatureHeader(time.Now().Add(-time.Hour), payload, testSecret),
		},
		{
			name:   "future timestamp",
			header: SignatureHeader(time.Now().Add(time.Hour), payload, testSecret),
		},
		{
			name:   "missing digest",
			header: "t=1700000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.VerifyEventSignature(payload, tt.header, testSecret)
			assert.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}
}
