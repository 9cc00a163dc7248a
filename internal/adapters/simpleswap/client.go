package simpleswap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultBaseURL = "https://api.simpleswap.io/v3"

// Config represents SimpleSwap API configuration
type Config struct {
	httpclient.Config
	APIKey string
}

// Client represents a SimpleSwap API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new SimpleSwap API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "simpleswap"

	auth := func(req *http.Request, _ []byte) error {
		if config.APIKey != "" {
			req.Header.Set("api-key", config.APIKey)
		}
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// call performs req and unwraps the result envelope into out. It returns
// the unwrapped result bytes.
func (c *Client) call(ctx context.Context, req httpclient.Request, out interface{}) ([]byte, error) {
	body, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := httpclient.Decode(body, &env); err != nil {
		return nil, err
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return nil, fmt.Errorf("failed to decode simpleswap result: %w", err)
		}
	}
	return env.Result, nil
}

// GetCurrencies lists every supported ticker and network
func (c *Client) GetCurrencies(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if _, err := c.call(ctx, httpclient.Request{Operation: "currencies", Path: "/currencies"}, &out); err != nil {
		return nil, fmt.Errorf("get currencies failed: %w", err)
	}
	return out, nil
}

// GetPairs returns the raw pair map for fixed or floating rates
func (c *Client) GetPairs(ctx context.Context, fixed bool) (json.RawMessage, error) {
	raw, err := c.call(ctx, httpclient.Request{
		Operation: "pairs",
		Path:      "/pairs",
		Query:     url.Values{"fixed": {strconv.FormatBool(fixed)}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("get pairs failed: %w", err)
	}
	return raw, nil
}

// GetEstimate prices an exchange
func (c *Client) GetEstimate(ctx context.Context, query url.Values) (*Estimate, []byte, error) {
	var est Estimate
	raw, err := c.call(ctx, httpclient.Request{Operation: "quote", Path: "/estimates", Query: query}, &est)
	if err != nil {
		return nil, nil, fmt.Errorf("get estimate failed: %w", err)
	}
	return &est, raw, nil
}

// GetRange returns the min/max amounts for a pair
func (c *Client) GetRange(ctx context.Context, query url.Values) (*Range, error) {
	var rng Range
	if _, err := c.call(ctx, httpclient.Request{Operation: "limits", Path: "/ranges", Query: query}, &rng); err != nil {
		return nil, fmt.Errorf("get range failed: %w", err)
	}
	return &rng, nil
}

// CreateExchange creates an exchange
func (c *Client) CreateExchange(ctx context.Context, req *CreateRequest) (*Exchange, []byte, error) {
	var ex Exchange
	raw, err := c.call(ctx, httpclient.Request{Operation: "create", Method: http.MethodPost, Path: "/exchanges", Body: req}, &ex)
	if err != nil {
		return nil, nil, fmt.Errorf("create exchange failed: %w", err)
	}
	return &ex, raw, nil
}

// GetExchange retrieves an exchange by public id
func (c *Client) GetExchange(ctx context.Context, publicID string) (*Exchange, []byte, error) {
	var ex Exchange
	raw, err := c.call(ctx, httpclient.Request{Operation: "status", Path: "/exchanges/" + url.PathEscape(publicID)}, &ex)
	if err != nil {
		return nil, nil, fmt.Errorf("get exchange failed: %w", err)
	}
	return &ex, raw, nil
}
