package moonpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const (
	defaultBaseURL       = "https://api.moonpay.com"
	defaultBuyWidgetURL  = "https://buy.moonpay.com"
	defaultSellWidgetURL = "https://sell.moonpay.com"
)

// Config represents MoonPay API configuration
type Config struct {
	httpclient.Config
	// APIKey is the publishable key sent as the apiKey query parameter
	APIKey string
	// SecretKey signs widget URLs and authorizes transaction lookups
	SecretKey               string
	BuyWidgetURL            string
	SellWidgetURL           string
	WebhookSecret           string
	AllowUnverifiedWebhooks bool
	CurrencyTTL             time.Duration
}

// Client represents a MoonPay API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new MoonPay API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "moonpay"

	auth := func(req *http.Request, _ []byte) error {
		q := req.URL.Query()
		q.Set("apiKey", config.APIKey)
		req.URL.RawQuery = q.Encode()
		if config.SecretKey != "" {
			req.Header.Set("Authorization", "Api-Key "+config.SecretKey)
		}
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// GetCurrencies lists every crypto and fiat currency
func (c *Client) GetCurrencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currencies", Path: "/v3/currencies"}, &out); err != nil {
		return nil, fmt.Errorf("get currencies failed: %w", err)
	}
	return out, nil
}

// GetQuote calls buy_quote or sell_quote for a crypto code
func (c *Client) GetQuote(ctx context.Context, cryptoCode string, sell bool, query url.Values) (*Quote, []byte, error) {
	endpoint := "buy_quote"
	if sell {
		endpoint = "sell_quote"
	}
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: "quote",
		Path:      fmt.Sprintf("/v3/currencies/%s/%s", url.PathEscape(cryptoCode), endpoint),
		Query:     query,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get quote failed: %w", err)
	}
	var out Quote
	if err := httpclient.Decode(body, &out); err != nil {
		return nil, nil, err
	}
	return &out, body, nil
}

// GetLimits returns the raw limits document for a crypto code
func (c *Client) GetLimits(ctx context.Context, cryptoCode string, query url.Values) ([]byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: "limits",
		Path:      fmt.Sprintf("/v3/currencies/%s/limits", url.PathEscape(cryptoCode)),
		Query:     query,
	})
	if err != nil {
		return nil, fmt.Errorf("get limits failed: %w", err)
	}
	return body, nil
}

// GetTransaction looks a transaction up by MoonPay id
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: "/v1/transactions/" + url.PathEscape(id)})
	if err != nil {
		return nil, nil, fmt.Errorf("get transaction failed: %w", err)
	}
	var out Transaction
	if err := httpclient.Decode(body, &out); err != nil {
		return nil, nil, err
	}
	return &out, body, nil
}

// GetTransactionsByExternalID returns every transaction carrying the
// external id, oldest first
func (c *Client) GetTransactionsByExternalID(ctx context.Context, externalID string) ([]Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: "/v1/transactions/ext/" + url.PathEscape(externalID)})
	if err != nil {
		return nil, nil, fmt.Errorf("get transactions by external id failed: %w", err)
	}
	var out []Transaction
	if err := httpclient.Decode(body, &out); err != nil {
		return nil, nil, err
	}
	return out, body, nil
}

// GetIPAddress returns the caller location document
func (c *Client) GetIPAddress(ctx context.Context, ip string) (json.RawMessage, error) {
	var query url.Values
	if ip != "" {
		query = url.Values{"ipAddress": {ip}}
	}
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "ip_info", Path: "/v4/ip_address", Query: query})
	if err != nil {
		return nil, fmt.Errorf("get ip address failed: %w", err)
	}
	return body, nil
}
