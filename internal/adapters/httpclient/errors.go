package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/pkg/metrics"
)

// APIError is a non-2xx response from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       []byte
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error [%d]: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error [%d]", e.Provider, e.StatusCode)
}

// IsClientError returns true for 4xx responses
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsNotFound returns true if the error is a 404 not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsRateLimited returns true if the error is a 429 rate limit error
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// Details returns the decoded body when it is JSON, otherwise the raw text
func (e *APIError) Details() interface{} {
	var decoded interface{}
	if len(e.Body) > 0 && json.Unmarshal(e.Body, &decoded) == nil {
		return decoded
	}
	return string(e.Body)
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Upstream wraps a transport or API failure as a domain upstream error
func Upstream(provider string, err error) error {
	if err == nil {
		return nil
	}
	status := 0
	if apiErr, ok := AsAPIError(err); ok {
		status = apiErr.StatusCode
	}
	return domainerrors.UpstreamError(provider, status, err)
}

// UpstreamWithHint is Upstream plus the min/max bounds recovered from the
// provider's error text, attached under details.amount_hint
func UpstreamWithHint(provider string, err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		return Upstream(provider, err)
	}
	de := domainerrors.UpstreamError(provider, apiErr.StatusCode, err)
	text := apiErr.Message
	if text == "" {
		text = string(apiErr.Body)
	}
	if hint := ScrapeHint(provider, text); hint != nil {
		de.Details["amount_hint"] = hint
	}
	return de
}

// ScrapeHint returns nil when text carries no recognisable bound
func ScrapeHint(provider, text string) *entities.AmountHint {
	lo, hi := ScrapeAmountHint(text)
	if lo == nil && hi == nil {
		return nil
	}
	metrics.AmountHintScrapedTotal.WithLabelValues(provider).Inc()
	return &entities.AmountHint{MinAmount: lo, MaxAmount: hi, Scraped: true}
}

// errorMessage pulls a human readable message out of the many error shapes
// providers use
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		if len(body) > 200 {
			return string(body[:200])
		}
		return string(body)
	}
	for _, path := range []string{"message", "error.message", "error", "detail", "description", "errors.0.message", "msg"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
