package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/domain/services/reconciliation"
	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/security"
)

// maxLoggedBody caps how much of a rejected payload reaches the logs
const maxLoggedBody = 512

// Webhook acknowledgement statuses
const (
	WebhookStatusIgnored = "ignored"
	WebhookStatusError   = "error"
)

// WebhookHandlers receives provider status callbacks
type WebhookHandlers struct {
	reconciler Reconciler
	logger     *logger.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance
func NewWebhookHandlers(reconciler Reconciler, logger *logger.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Handle returns the POST /api/v1/:provider/webhook handler for p.
//
// Only a failed signature is answered with anything other than 200. Once
// the delivery is authenticated every outcome, including internal
// failures, is acknowledged so the provider stops retrying.
func (h *WebhookHandlers) Handle(p provider.Provider, parser provider.WebhookParser) gin.HandlerFunc {
	name := p.Name()
	return func(c *gin.Context) {
		rawBody, err := c.GetRawData()
		if err != nil {
			respondBadRequest(c, "Failed to read request body")
			return
		}

		if err := parser.SignatureVerifier().Verify(c.Request.Header, rawBody); err != nil {
			h.logger.Warn("Webhook signature verification failed",
				"provider", name,
				"error", err,
				"headers", security.RedactHeaders(c.Request.Header),
				"request_id", getRequestID(c))
			NewError(http.StatusUnauthorized, ErrCodeInvalidSignature).
				Message("Webhook signature verification failed").
				Send(c)
			return
		}

		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Panic while processing webhook",
					"provider", name,
					"panic", fmt.Sprint(r),
					"request_id", getRequestID(c))
				c.JSON(http.StatusOK, gin.H{"status": WebhookStatusError})
			}
		}()

		event, err := parser.ParseWebhook(rawBody)
		if err != nil {
			h.logger.Warn("Ignoring unparseable webhook",
				"provider", name,
				"error", err,
				"body_bytes", len(rawBody),
				"body", bodySnippet(rawBody))
			c.JSON(http.StatusOK, gin.H{"status": WebhookStatusIgnored})
			return
		}

		outcome, err := h.reconciler.ApplyWebhook(c.Request.Context(), p, event)
		if err != nil {
			h.logger.Error("Webhook processing failed",
				"provider", name,
				"event_id", event.EventID,
				"raw_status", event.RawStatus,
				"correlation_keys", event.CorrelationKeys,
				"error", err)
			c.JSON(http.StatusOK, gin.H{"status": WebhookStatusError})
			return
		}

		h.logger.Info("Webhook processed",
			"provider", name,
			"event_id", event.EventID,
			"raw_status", event.RawStatus,
			"outcome", outcome.Kind,
			"transaction_id", outcome.TransactionID,
			"status", outcome.Status)

		c.JSON(http.StatusOK, webhookAck(outcome))
	}
}

func webhookAck(o *reconciliation.Outcome) gin.H {
	ack := gin.H{"status": o.Kind}
	if o.TransactionID != "" {
		ack["transaction_id"] = o.TransactionID
	}
	if o.Status != "" {
		ack["transaction_status"] = o.Status
	}
	return ack
}

func bodySnippet(body []byte) string {
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	return security.MaskString(string(body))
}
