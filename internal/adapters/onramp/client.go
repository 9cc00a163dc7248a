package onramp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const (
	defaultBaseURL = "https://api.onramp.money"

	configMappingPath = "/onramp/api/v2/common/transaction/allConfigMapping"
	quotesPath        = "/onramp/api/v2/common/transaction/quotes"
	generateLinkPath  = "/onramp/api/v2/common/transaction/generateLink"
)

// Config represents OnRamp API configuration
type Config struct {
	httpclient.Config
	APIKey                  string
	APISecret               string
	WebhookSecret           string
	AllowUnverifiedWebhooks bool
	// ConfigTTL bounds how long allConfigMapping is reused
	ConfigTTL time.Duration
}

// Client represents an OnRamp API client
type Client struct {
	http *httpclient.Client
}

// NewClient creates a new OnRamp API client. Every request carries the
// X-ONRAMP-PAYLOAD/SIGNATURE/APIKEY triple.
func NewClient(config Config, log *logger.Logger) *Client {
	return newClient(config, log, time.Now)
}

func newClient(config Config, log *logger.Logger, now func() time.Time) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "onramp"

	auth := func(req *http.Request, body []byte) error {
		if body == nil {
			body = []byte("{}")
		}
		payload, err := json.Marshal(signedPayload{
			Timestamp: now().UnixMilli(),
			Body:      body,
		})
		if err != nil {
			return fmt.Errorf("failed to encode onramp payload: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(payload)

		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
		req.Header.Set("X-ONRAMP-APIKEY", config.APIKey)
		req.Header.Set("X-ONRAMP-PAYLOAD", encoded)
		req.Header.Set("X-ONRAMP-SIGNATURE", crypto.HMACHex(crypto.SHA512, []byte(config.APISecret), []byte(encoded)))
		return nil
	}
	return &Client{http: httpclient.New(config.Config, auth, log)}
}

// post sends body and unwraps the status envelope. status != 1 is
// reported as a rejected request.
func (c *Client) post(ctx context.Context, operation, path string, body, out interface{}) ([]byte, error) {
	if body == nil {
		body = struct{}{}
	}
	raw, err := c.http.Do(ctx, httpclient.Request{
		Operation:  operation,
		Method:     http.MethodPost,
		Path:       path,
		Body:       body,
		Idempotent: path != generateLinkPath,
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := httpclient.Decode(raw, &env); err != nil {
		return nil, err
	}
	if env.Status != 1 {
		return nil, &httpclient.APIError{
			Provider:   "onramp",
			StatusCode: http.StatusBadRequest,
			Body:       raw,
			Message:    rejection(raw),
		}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode onramp data: %w", err)
		}
	}
	return env.Data, nil
}

func rejection(raw []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(raw, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return "request rejected"
}

// GetConfigMapping returns the raw fiat, coin and chain mappings
func (c *Client) GetConfigMapping(ctx context.Context) (json.RawMessage, error) {
	data, err := c.post(ctx, "config", configMappingPath, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get config mapping failed: %w", err)
	}
	return data, nil
}

// GetQuote prices an onramp (type 1) or offramp (type 2) flow
func (c *Client) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, []byte, error) {
	var out Quote
	data, err := c.post(ctx, "quote", quotesPath, req, &out)
	if err != nil {
		return nil, nil, fmt.Errorf("get quote failed: %w", err)
	}
	return &out, data, nil
}

// GenerateLink creates the hosted widget link
func (c *Client) GenerateLink(ctx context.Context, req *LinkRequest) (*Link, []byte, error) {
	var out Link
	data, err := c.post(ctx, "create", generateLinkPath, req, &out)
	if err != nil {
		return nil, nil, fmt.Errorf("generate link failed: %w", err)
	}
	return &out, data, nil
}
