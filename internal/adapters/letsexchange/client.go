package letsexchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultBaseURL = "https://api.letsexchange.io/api"

// Config represents LetsExchange API configuration
type Config struct {
	httpclient.Config
	APIKey      string
	AffiliateID string
}

// Client represents a LetsExchange API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new LetsExchange API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "letsexchange"

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

	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// GetCoins lists every coin with its networks
func (c *Client) GetCoins(ctx context.Context) ([]Coin, error) {
	var coins []Coin
	if err := c.http.DoInto(ctx, httpclient.Request{Operation: "currencies", Path: "/v2/coins"}, &coins); err != nil {
		return nil, fmt.Errorf("get coins failed: %w", err)
	}
	return coins, nil
}

// GetInfo requests a rate estimate
func (c *Client) GetInfo(ctx context.Context, req *InfoRequest) (*InfoResponse, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation:  "quote",
		Method:     http.MethodPost,
		Path:       "/v1/info",
		Body:       req,
		Idempotent: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get info failed: %w", err)
	}
	var info InfoResponse
	if err := httpclient.Decode(body, &info); err != nil {
		return nil, nil, err
	}
	return &info, body, nil
}

// CreateTransaction creates an exchange
func (c *Client) CreateTransaction(ctx context.Context, req *CreateRequest) (*Transaction, []byte, error) {
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: "create",
		Method:    http.MethodPost,
		Path:      "/v1/transaction",
		Body:      req,
	})
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
	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: "status",
		Path:      "/v1/transaction/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get transaction failed: %w", err)
	}
	var txn Transaction
	if err := httpclient.Decode(body, &txn); err != nil {
		return nil, nil, err
	}
	return &txn, body, nil
}
