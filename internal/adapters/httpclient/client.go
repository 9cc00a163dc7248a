// Package httpclient is the outbound transport shared by every provider
// adapter: tracing, circuit breaking, rate limiting, retries for idempotent
// calls and per-provider metrics.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/metrics"
	"github.com/cryptogate/gateway_service/pkg/retry"
)

// Config represents a provider API configuration
type Config struct {
	Provider        string
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	RateLimitPerSec float64
	Headers         map[string]string
}

// AuthFunc decorates an outgoing request. body is the encoded payload, nil
// for requests without one.
type AuthFunc func(req *http.Request, body []byte) error

// Request describes one provider call
type Request struct {
	// Operation labels metrics and logs, e.g. "quote"
	Operation string
	Method    string
	Path      string
	Query     url.Values
	Body      interface{}
	// RawBody is sent verbatim when set, Body is ignored
	RawBody []byte
	// Idempotent requests are retried. GET is always idempotent.
	Idempotent bool
}

// Client represents a provider API client
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	auth       AuthFunc
	retry      retry.RetryConfig
	logger     *logger.Logger
}

// New creates a new provider API client
func New(config Config, auth AuthFunc, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if log == nil {
		log = logger.NewNop()
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = config.MaxRetries

	var limiter *rate.Limiter
	if config.RateLimitPerSec > 0 {
		burst := int(config.RateLimitPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimitPerSec), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Provider,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// a rejected request says nothing about provider health
			apiErr, ok := AsAPIError(err)
			return ok && apiErr.IsClientError() && !apiErr.IsRateLimited()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Provider circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		limiter: limiter,
		auth:    auth,
		retry:   retryCfg,
		logger:  log,
	}
}

// Provider returns the provider label
func (c *Client) Provider() string {
	return c.config.Provider
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// DoInto performs req and decodes the JSON response into out
func (c *Client) DoInto(ctx context.Context, req Request, out interface{}) error {
	respBody, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal %s response: %w", c.config.Provider, err)
		}
	}
	return nil
}

// Do performs req and returns the raw response body of a 2xx response.
// Idempotent requests are retried on transport errors, 5xx and 429.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Operation == "" {
		req.Operation = strings.ToLower(req.Method)
	}

	var payload []byte
	if req.RawBody != nil {
		payload = req.RawBody
	} else if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	start := time.Now()
	var respBody []byte
	attempt := func() error {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.send(ctx, req, payload)
		})
		if err != nil {
			return err
		}
		respBody = out.([]byte)
		return nil
	}

	var err error
	if req.Method == http.MethodGet || req.Idempotent {
		err = retry.WithExponentialBackoff(ctx, c.retry, attempt, isRetryable)
	} else {
		err = attempt()
	}

	metrics.ProviderRequestDuration.WithLabelValues(c.config.Provider, req.Operation).Observe(time.Since(start).Seconds())
	metrics.ProviderRequestsTotal.WithLabelValues(c.config.Provider, req.Operation, outcome(err)).Inc()

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("%s %s failed: %w", c.config.Provider, req.Operation, err)
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	fullURL, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.auth != nil {
		if err := c.auth(httpReq, payload); err != nil {
			return nil, fmt.Errorf("failed to authenticate request: %w", err)
		}
	}

	c.logger.Debug("Sending provider request", "provider", c.config.Provider, "operation", req.Operation, "method", req.Method, "path", req.Path)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Received provider response", "provider", c.config.Provider, "operation", req.Operation, "status_code", resp.StatusCode, "body_size", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Provider:   c.config.Provider,
			StatusCode: resp.StatusCode,
			Body:       respBody,
			Message:    errorMessage(respBody),
		}
	}
	return respBody, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request url %q: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode >= 500 || apiErr.IsRateLimited()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "request failed")
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	if apiErr, ok := AsAPIError(err); ok {
		if apiErr.IsClientError() {
			return "client_error"
		}
		return "server_error"
	}
	return "transport_error"
}
