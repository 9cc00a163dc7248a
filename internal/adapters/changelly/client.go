package changelly

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultBaseURL = "https://api.changelly.com/v2"

// Config represents Changelly API configuration
type Config struct {
	httpclient.Config
	APIKey string
	// PrivateKey is the hex encoded DER RSA key registered with Changelly
	PrivateKey string
}

// Client represents a Changelly JSON-RPC client
type Client struct {
	http  *httpclient.Client
	newID func() string
}

// NewClient creates a new Changelly API client. An unparsable private key
// is logged once and fails every request.
func NewClient(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.Provider = "changelly"

	var key *rsa.PrivateKey
	var keyErr error
	if config.PrivateKey != "" {
		key, keyErr = crypto.ParseRSAPrivateKeyHex(config.PrivateKey)
		if keyErr != nil {
			log.Error("Invalid Changelly private key", "error", keyErr)
		}
	}

	auth := func(req *http.Request, body []byte) error {
		if keyErr != nil {
			return keyErr
		}
		req.Header.Set("X-Api-Key", config.APIKey)
		if key != nil {
			sig, err := crypto.SignRSASHA256(key, body)
			if err != nil {
				return err
			}
			req.Header.Set("X-Api-Signature", sig)
		}
		return nil
	}
	return &Client{
		http:  httpclient.New(config.Config, auth, log),
		newID: uuid.NewString,
	}
}

// call sends one JSON-RPC request and decodes its result into out. The body
// is encoded once so the signed bytes are the bytes sent.
func (c *Client) call(ctx context.Context, operation, method string, params, out interface{}) ([]byte, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.newID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	body, err := c.http.Do(ctx, httpclient.Request{
		Operation: operation,
		Method:    http.MethodPost,
		Path:      "/",
		RawBody:   payload,
		// read-only methods are safe to resend
		Idempotent: method != "createTransaction",
	})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := httpclient.Decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return resp.Result, nil
}

// GetCurrenciesFull lists every currency with its capabilities
func (c *Client) GetCurrenciesFull(ctx context.Context) ([]Currency, error) {
	var out []Currency
	if _, err := c.call(ctx, "currencies", "getCurrenciesFull", map[string]interface{}{}, &out); err != nil {
		return nil, fmt.Errorf("get currencies failed: %w", err)
	}
	return out, nil
}

// GetExchangeAmount prices a floating-rate exchange
func (c *Client) GetExchangeAmount(ctx context.Context, params PairParams) (*ExchangeAmount, []byte, error) {
	var out []ExchangeAmount
	raw, err := c.call(ctx, "quote", "getExchangeAmount", []PairParams{params}, &out)
	if err != nil {
		return nil, nil, fmt.Errorf("get exchange amount failed: %w", err)
	}
	if len(out) == 0 {
		return nil, raw, fmt.Errorf("get exchange amount failed: empty result")
	}
	return &out[0], raw, nil
}

// GetPairsParams returns the floating and fixed limits of a pair
func (c *Client) GetPairsParams(ctx context.Context, from, to string) (*PairLimits, error) {
	var out []PairLimits
	if _, err := c.call(ctx, "limits", "getPairsParams", []PairParams{{From: from, To: to}}, &out); err != nil {
		return nil, fmt.Errorf("get pairs params failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("get pairs params failed: empty result")
	}
	return &out[0], nil
}

// CreateTransaction creates a floating-rate exchange
func (c *Client) CreateTransaction(ctx context.Context, params *CreateParams) (*Transaction, []byte, error) {
	var out Transaction
	raw, err := c.call(ctx, "create", "createTransaction", params, &out)
	if err != nil {
		return nil, nil, fmt.Errorf("create transaction failed: %w", err)
	}
	return &out, raw, nil
}

// GetStatus returns the bare status string of a transaction
func (c *Client) GetStatus(ctx context.Context, id string) (string, error) {
	var status string
	if _, err := c.call(ctx, "status", "getStatus", map[string]string{"id": id}, &status); err != nil {
		return "", fmt.Errorf("get status failed: %w", err)
	}
	return status, nil
}
