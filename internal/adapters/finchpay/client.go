package finchpay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const (
	defaultBaseURL       = "https://api.finchpay.io"
	defaultWidgetBaseURL = "https://widget.finchpay.io"
)

// Config represents FinchPay API configuration
type Config struct {
	httpclient.Config
	APIKey string
	// SecretKey signs prefilled wallet addresses
	SecretKey               string
	WidgetBaseURL           string
	WebhookSecret           string
	AllowUnverifiedWebhooks bool
}

// Client represents a FinchPay API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new FinchPay API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "finchpay"

	auth := func(req *http.Request, _ []byte) error {
		req.Header.Set("x-api-key", config.APIKey)
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// GetCurrencies lists fiat and crypto assets
func (c *Client) GetCurrencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currencies", Path: "/v1/currencies"}, &out); err != nil {
		return nil, fmt.Errorf("get currencies failed: %w", err)
	}
	return out, nil
}

// GetLimits returns the raw limits document for a pair
func (c *Client) GetLimits(ctx context.Context, query url.Values) ([]byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "limits", Path: "/v2/currencies/limits", Query: query})
	if err != nil {
		return nil, fmt.Errorf("get limits failed: %w", err)
	}
	return body, nil
}

// GetEstimate prices a BUY
func (c *Client) GetEstimate(ctx context.Context, query url.Values) (*Estimate, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "quote", Path: "/v1/estimates", Query: query})
	if err != nil {
		return nil, nil, fmt.Errorf("get estimate failed: %w", err)
	}
	var est Estimate
	if err := httpclient.Decode(body, &est); err != nil {
		return nil, nil, err
	}
	return &est, body, nil
}

// GetTransactionByExternalID looks a transaction up by the id we generated
func (c *Client) GetTransactionByExternalID(ctx context.Context, externalID string) (*Transaction, []byte, error) {
	return c.getTransaction(ctx, "/v1/transaction/external/"+url.PathEscape(externalID))
}

// GetTransaction looks a transaction up by FinchPay's own id
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, []byte, error) {
	return c.getTransaction(ctx, "/v1/transaction/"+url.PathEscape(id))
}

func (c *Client) getTransaction(ctx context.Context, path string) (*Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: path})
	if err != nil {
		return nil, nil, fmt.Errorf("get transaction failed: %w", err)
	}
	var txn Transaction
	if err := httpclient.Decode(body, &txn); err != nil {
		return nil, nil, err
	}
	return &txn, body, nil
}
