package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// Error codes as constants for consistent error responses across handlers
const (
	// Authentication & Authorization errors
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"

	// Validation errors
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeInvalidAmount   = "INVALID_AMOUNT"

	// Resource errors
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeProviderNotFound    = "PROVIDER_NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"

	// Operation errors
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUnsupported        = "UNSUPPORTED_OPERATION"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeUpstream           = "UPSTREAM_ERROR"

	// Webhook errors
	ErrCodeInvalidSignature = "INVALID_SIGNATURE"
)

// Error messages as constants for consistency
const (
	MsgInvalidRequest     = "Invalid request payload"
	MsgUnauthorized       = "Authentication required"
	MsgInternalError      = "Internal server error"
	MsgServiceUnavailable = "Service temporarily unavailable"
)

// ErrorResponseBuilder provides a fluent interface for building error responses
type ErrorResponseBuilder struct {
	status  int
	code    string
	message string
	details map[string]interface{}
}

// NewError creates a new ErrorResponseBuilder
func NewError(status int, code string) *ErrorResponseBuilder {
	return &ErrorResponseBuilder{
		status: status,
		code:   code,
	}
}

// Message sets the error message
func (e *ErrorResponseBuilder) Message(msg string) *ErrorResponseBuilder {
	e.message = msg
	return e
}

// Detail adds a single detail to the error response
func (e *ErrorResponseBuilder) Detail(key string, value interface{}) *ErrorResponseBuilder {
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

// Details sets all details at once
func (e *ErrorResponseBuilder) Details(details map[string]interface{}) *ErrorResponseBuilder {
	e.details = details
	return e
}

// Send sends the error response
func (e *ErrorResponseBuilder) Send(c *gin.Context) {
	c.JSON(e.status, entities.ErrorResponse{
		Code:    e.code,
		Message: e.message,
		Details: e.details,
	})
}

// SendValidationError sends a validation error with field details
func SendValidationError(c *gin.Context, message string, fieldErrors map[string]string) {
	c.JSON(http.StatusBadRequest, entities.ErrorResponse{
		Code:    ErrCodeValidationError,
		Message: message,
		Details: map[string]interface{}{
			"validation_errors": fieldErrors,
		},
	})
}

// SendSuccess sends a 200 OK response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendUpstreamError reports a failed provider call in the
// {success, message, details} shape. A provider 4xx means the caller's
// request was rejected and is a 400; anything else is a 502.
func SendUpstreamError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	message := "Provider request failed"
	var details interface{}

	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	if apiErr, ok := httpclient.AsAPIError(err); ok {
		if apiErr.IsClientError() && !apiErr.IsRateLimited() {
			status = http.StatusBadRequest
		}
		body := map[string]interface{}{
			"upstream_status": apiErr.StatusCode,
			"error":           apiErr.Details(),
		}
		if apiErr.Message != "" {
			body["provider_message"] = apiErr.Message
		}
		if de != nil {
			if hint, ok := de.Details["amount_hint"]; ok {
				body["amount_hint"] = hint
			}
			body["retryable"] = de.IsRetryable()
		}
		details = body
	} else if de != nil && de.Details != nil {
		details = de.Details
	} else {
		details = err.Error()
	}

	c.JSON(status, entities.UpstreamErrorResponse{
		Success: false,
		Message: message,
		Details: details,
	})
}

// handleServiceError maps service and adapter errors onto responses
func handleServiceError(c *gin.Context, log *logger.Logger, err error) {
	var de *domainerrors.DomainError
	switch {
	case domainerrors.IsUpstream(err):
		log.Warn("Provider call failed", "error", err, "request_id", getRequestID(c))
		SendUpstreamError(c, err)
	case domainerrors.IsInvalidInput(err):
		resp := NewError(http.StatusBadRequest, ErrCodeValidationError).Message(err.Error())
		if errors.As(err, &de) {
			resp.Message(de.Message).Details(de.Details)
		}
		resp.Send(c)
	case errors.Is(err, domainerrors.ErrCapabilityUnsupported):
		NewError(http.StatusNotImplemented, ErrCodeUnsupported).Message(err.Error()).Send(c)
	case errors.Is(err, domainerrors.ErrProviderNotFound):
		NewError(http.StatusNotFound, ErrCodeProviderNotFound).Message(err.Error()).Send(c)
	case domainerrors.IsNotFound(err):
		code, message := ErrCodeTransactionNotFound, "Transaction not found"
		if errors.As(err, &de) {
			code, message = de.Code, de.Message
		}
		respondError(c, http.StatusNotFound, code, message, nil)
	case errors.Is(err, domainerrors.ErrTransactionNotFound):
		respondError(c, http.StatusNotFound, ErrCodeTransactionNotFound, "Transaction not found", nil)
	case errors.Is(err, domainerrors.ErrForbidden):
		respondError(c, http.StatusForbidden, ErrCodeForbidden, err.Error(), nil)
	case errors.Is(err, domainerrors.ErrEntryLocked):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	default:
		log.Error("Request failed", "error", err, "request_id", getRequestID(c), "path", c.FullPath())
		respondInternalError(c, MsgInternalError)
	}
}
