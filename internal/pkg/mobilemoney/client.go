package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds mobile money provider configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the mobile money provider's collection API
type Client struct {
	httpClient *http.Client
	config     Config
}

// CreatePaymentRequest asks the provider to collect Amount XAF from the payer
type CreatePaymentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ExternalID  string `json:"externalId"`
	UserID      string `json:"userId"`
	Description string `json:"description"`
	CallbackURL string `json:"callbackUrl"`
}

// CreatePaymentResponse carries the handle the client app uses to complete the payment
type CreatePaymentResponse struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
	Status        string `json:"status"`
}

// NewClient creates a new provider client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// CreatePayment initiates a collection and returns the payment handle
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		return nil, fmt.Errorf("validation error: externalId must be non-empty")
	}
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("mobile money client is not initialized")
	}
	if strings.TrimSpace(c.config.BaseURL) == "" {
		return nil, fmt.Errorf("mobile money config error: base_url is empty")
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/collections"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("mobile money api call failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	// the provider dedups collections on this header
	httpReq.Header.Set("Idempotency-Key", req.ExternalID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mobile money api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mobile money api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mobile money api returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}

	var out CreatePaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse mobile money response: %w", err)
	}
	return &out, nil
}
