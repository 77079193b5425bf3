package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/shopstack/checkout/internal/service/models/currency"
)

// GatewayError reports a failed authorization call. Retryable errors mean no
// durable state changed upstream and the caller may safely try again.
type GatewayError struct {
	Retryable bool
	Status    int
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error (retryable=%t, status=%d): %v", e.Retryable, e.Status, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// AuthorizeRequest carries the charge to authorize. Metadata is the sole
// linkage the asynchronous confirmation can rely on, so it must contain the
// order id and owner id.
type AuthorizeRequest struct {
	AmountCents int64             `json:"amountCents"`
	Currency    currency.Currency `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// Intent is the processor's handle for an authorization request.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
}

// Client is a thin wrapper around the processor's authorization API. It never
// retries internally; retry policy belongs to the caller.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
}

// MustNewClient creates a new gateway client from configuration.
func MustNewClient() *Client {
	baseURL := viper.GetString("gateway.base_url")
	if baseURL == "" {
		panic("gateway.base_url is not set in config")
	}

	timeoutSeconds := viper.GetInt("gateway.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 10
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		baseURL:       baseURL,
		secretKey:     os.Getenv("GATEWAY_SECRET_KEY"),
		webhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
	}
}

// NewClient creates a gateway client with explicit settings. A nil httpClient
// falls back to a default with the standard timeout.
func NewClient(httpClient *http.Client, baseURL, secretKey, webhookSecret string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
	}
}

// WebhookSecret returns the secret used to verify inbound event signatures.
func (c *Client) WebhookSecret() string {
	return c.webhookSecret
}

// Authorize requests payment authorization for the given amount. The call is
// bounded by the client timeout; timeouts and 5xx responses come back as a
// retryable GatewayError.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to marshal authorize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/payment_intents",
		bytes.NewReader(body),
	)
	if err != nil {
		return Intent{}, fmt.Errorf("failed to build authorize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Intent{}, &GatewayError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Intent{}, &GatewayError{
			Retryable: true,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("processor returned %s", resp.Status),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Intent{}, &GatewayError{
			Retryable: false,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("processor returned %s", resp.Status),
		}
	}

	var intent struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return Intent{}, &GatewayError{
			Retryable: false,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("failed to decode intent response: %w", err),
		}
	}

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}
