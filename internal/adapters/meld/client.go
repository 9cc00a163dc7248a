package meld

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const (
	defaultBaseURL = "https://api.meld.io"
	defaultTimeout = 20 * time.Second
)

// Config represents Meld API configuration
type Config struct {
	httpclient.Config
	// APIKey is either the key half or the combined "key:secret" form
	APIKey                  string
	APISecret               string
	DefaultCountry          string
	DefaultServiceProvider  string
	WebhookSecret           string
	AllowUnverifiedWebhooks bool
}

// credentials splits the combined key form when no separate secret is set
func (c Config) credentials() (string, string) {
	if c.APISecret != "" {
		return c.APIKey, c.APISecret
	}
	if key, secret, ok := strings.Cut(c.APIKey, ":"); ok {
		return key, secret
	}
	return c.APIKey, ""
}

// Client represents a Meld API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new Meld API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.Provider = "meld"

	key, secret := config.credentials()
	auth := func(req *http.Request, _ []byte) error {
		req.SetBasicAuth(key, secret)
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// GetCryptoCurrencies lists the crypto assets Meld routes
func (c *Client) GetCryptoCurrencies(ctx context.Context) ([]CryptoCurrency, error) {
	var out []CryptoCurrency
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currencies", Path: "/service-providers/properties/crypto-currencies"}, &out); err != nil {
		return nil, fmt.Errorf("get crypto currencies failed: %w", err)
	}
	return out, nil
}

// GetFiatCurrencies lists the fiat currencies Meld accepts
func (c *Client) GetFiatCurrencies(ctx context.Context) ([]FiatCurrency, error) {
	var out []FiatCurrency
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "fiat_currencies", Path: "/service-providers/properties/fiat-currencies"}, &out); err != nil {
		return nil, fmt.Errorf("get fiat currencies failed: %w", err)
	}
	return out, nil
}

// GetPaymentMethods lists payment methods, filtered by query
func (c *Client) GetPaymentMethods(ctx context.Context, query url.Values) ([]PaymentMethod, error) {
	var out []PaymentMethod
	req := httpclient.Request{Operation: "payment_methods", Path: "/service-providers/properties/payment-methods", Query: query}
	if err := c.http.DoInto(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("get payment methods failed: %w", err)
	}
	return out, nil
}

// GetQuote prices a pair across Meld's service providers
func (c *Client) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation:  "quote",
		Method:     http.MethodPost,
		Path:       "/payments/crypto/quote",
		Body:       req,
		Idempotent: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get quote failed: %w", err)
	}
	var out QuoteResponse
	if err := httpclient.Decode(body, &out); err != nil {
		return nil, nil, err
	}
	return &out, body, nil
}

// CreateWidgetSession opens a hosted widget session
func (c *Client) CreateWidgetSession(ctx context.Context, req *SessionRequest) (*Session, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: "create",
		Method:    http.MethodPost,
		Path:      "/crypto/session/widget",
		Body:      req,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create widget session failed: %w", err)
	}
	var out Session
	if err := httpclient.Decode(body, &out); err != nil {
		return nil, nil, err
	}
	return &out, body, nil
}

// SearchTransactions returns the raw transaction search document
func (c *Client) SearchTransactions(ctx context.Context, query url.Values) ([]byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: "/payments/transactions", Query: query})
	if err != nil {
		return nil, fmt.Errorf("search transactions failed: %w", err)
	}
	return body, nil
}

// GetTransaction returns the raw document of one payment transaction
func (c *Client) GetTransaction(ctx context.Context, id string) ([]byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: "/payments/transactions/" + url.PathEscape(id)})
	if err != nil {
		return nil, fmt.Errorf("get transaction failed: %w", err)
	}
	return body, nil
}
