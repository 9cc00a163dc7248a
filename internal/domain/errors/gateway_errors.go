package errors

import (
	"errors"
	"fmt"
)

// Gateway-specific errors
var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderDisabled      = errors.New("provider disabled")
	ErrCapabilityUnsupported = errors.New("operation not supported by provider")
	ErrUpstream              = errors.New("upstream provider error")

	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrMalformedWebhook = errors.New("malformed webhook payload")

	ErrTransactionNotFound = errors.New("transaction not found")
	ErrTerminalStatus      = errors.New("transaction already in terminal status")
	ErrEntryLocked         = errors.New("transaction entry is locked")
)

// UnsupportedError reports an optional capability a provider lacks
func UnsupportedError(provider, operation string) *DomainError {
	return &DomainError{
		Err:     ErrCapabilityUnsupported,
		Code:    "UNSUPPORTED_OPERATION",
		Message: fmt.Sprintf("%s does not support %s", provider, operation),
	}
}

// UpstreamError wraps a failed provider call. status is the upstream HTTP
// status, zero for transport failures.
func UpstreamError(provider string, status int, err error) *DomainError {
	de := &DomainError{
		Err:       fmt.Errorf("%w: %w", ErrUpstream, err),
		Code:      "UPSTREAM_ERROR",
		Message:   fmt.Sprintf("%s request failed", provider),
		Retryable: status == 0 || status >= 500 || status == 429,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
	if status > 0 {
		de.Details["upstream_status"] = status
	}
	return de
}

// IsUpstream checks if an error came from a provider call
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
