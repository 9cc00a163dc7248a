package exolix

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultBaseURL = "https://exolix.com/api/v2"

// Config represents Exolix API configuration
type Config struct {
	httpclient.Config
	APIKey string
}

// Client represents an Exolix API client
type Client struct {
	http   *httpclient.Client
	hasKey bool
}

// NewClient creates a new Exolix API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "exolix"

	token := strings.TrimSpace(config.APIKey)
	if token != "" && !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	auth := func(req *http.Request, _ []byte) error {
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log), hasKey: token != ""}
}

// GetCurrencies lists currencies, optionally with their networks
func (c *Client) GetCurrencies(ctx context.Context, query url.Values) (*CurrencyPage, error) {
	var page CurrencyPage
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currencies", Path: "/currencies", Query: query}, &page); err != nil {
		return nil, fmt.Errorf("get currencies failed: %w", err)
	}
	return &page, nil
}

// GetCurrencyNetworks lists the networks of one currency
func (c *Client) GetCurrencyNetworks(ctx context.Context, code string) ([]CurrencyNetwork, error) {
	var networks []CurrencyNetwork
	path := "/currencies/" + url.PathEscape(strings.ToLower(code)) + "/networks"
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currency_networks", Path: path}, &networks); err != nil {
		return nil, fmt.Errorf("get currency networks failed: %w", err)
	}
	return networks, nil
}

// GetNetworks lists every network
func (c *Client) GetNetworks(ctx context.Context, query url.Values) (*Page, error) {
	var page Page
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "networks", Path: "/currencies/networks", Query: query}, &page); err != nil {
		return nil, fmt.Errorf("get networks failed: %w", err)
	}
	return &page, nil
}

// GetRate prices an exchange
func (c *Client) GetRate(ctx context.Context, query url.Values) (*Rate, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "quote", Path: "/rate", Query: query})
	if err != nil {
		return nil, nil, fmt.Errorf("get rate failed: %w", err)
	}
	var rate Rate
	if err := httpclient.Decode(body, &rate); err != nil {
		return nil, nil, err
	}
	return &rate, body, nil
}

// CreateTransaction creates an exchange
func (c *Client) CreateTransaction(ctx context.Context, req *CreateRequest) (*Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "create", Method: http.MethodPost, Path: "/transactions", Body: req})
	if err != nil {
		return nil, nil, fmt.Errorf("create transaction failed: %w", err)
	}
	var txn Transaction
	if err := httpclient.Decode(body, &txn); err != nil {
		return nil, nil, err
	}
	return &txn, body, nil
}

// GetTransaction retrieves an exchange by id
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{Operation: "status", Path: "/transactions/" + url.PathEscape(id)})
	if err != nil {
		return nil, nil, fmt.Errorf("get transaction failed: %w", err)
	}
	var txn Transaction
	if err := httpclient.Decode(body, &txn); err != nil {
		return nil, nil, err
	}
	return &txn, body, nil
}

// ListTransactions returns the partner's exchange history. It needs an
// API key.
func (c *Client) ListTransactions(ctx context.Context, query url.Values) (*Page, error) {
	var page Page
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "transactions", Path: "/transactions", Query: query}, &page); err != nil {
		return nil, fmt.Errorf("list transactions failed: %w", err)
	}
	return &page, nil
}

// HasAPIKey reports whether authenticated endpoints can be called
func (c *Client) HasAPIKey() bool {
	return c.hasKey
}
