package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/internal/domain/services/transaction"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// TransactionQueries is the read side of the transaction service
type TransactionQueries interface {
	List(ctx context.Context, filter entities.TransactionFilter) (*entities.TransactionPage, error)
	Get(ctx context.Context, userID uuid.UUID, transactionID string) (*entities.TransactionRecord, error)
	Statistics(ctx context.Context, userID uuid.UUID) (*entities.TransactionStatistics, error)
	QuickStats(ctx context.Context, userID uuid.UUID) (*entities.QuickStats, error)
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.TransactionRecord, error)
	ExportRecords(ctx context.Context, userID uuid.UUID) ([]*entities.TransactionRecord, error)
}

// TransactionHandlers serves the authenticated user's history
type TransactionHandlers struct {
	service TransactionQueries
	logger  *logger.Logger
}

// NewTransactionHandlers creates a new TransactionHandlers instance
func NewTransactionHandlers(service TransactionQueries, logger *logger.Logger) *TransactionHandlers {
	return &TransactionHandlers{
		service: service,
		logger:  logger,
	}
}

func (h *TransactionHandlers) requireUser(c *gin.Context) (uuid.UUID, bool) {
	userID, err := getUserID(c)
	if err != nil {
		respondUnauthorized(c, MsgUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

// List handles GET /api/v1/transactions
// @Summary List the caller's transactions
// @Tags transactions
// @Produce json
// @Param provider query string false "Provider slug"
// @Param status query string false "Transaction status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} entities.TransactionPage
// @Failure 401 {object} entities.ErrorResponse
// @Security BearerAuth
// @Router /transactions [get]
// Filters: provider, type, status, source_currency, destination_currency,
// date_from, date_to, search, ordering, page, page_size
func (h *TransactionHandlers) List(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	dateFrom, err := parseDateParam(c, "date_from")
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	dateTo, err := parseDateParam(c, "date_to")
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	filter := entities.TransactionFilter{
		UserID:              userID,
		Provider:            entities.Provider(c.Query("provider")),
		TransactionType:     entities.TransactionType(c.Query("type")),
		Status:              entities.TransactionStatus(c.Query("status")),
		SourceCurrency:      strings.ToUpper(c.Query("source_currency")),
		DestinationCurrency: strings.ToUpper(c.Query("destination_currency")),
		DateFrom:            dateFrom,
		DateTo:              dateTo,
		Search:              c.Query("search"),
		Ordering:            c.DefaultQuery("ordering", "-created_at"),
		Page:                parseIntParam(c, "page", 1),
		PageSize:            parseIntParam(c, "page_size", 20),
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	SendSuccess(c, gin.H{
		"success": true,
		"data":    page,
	})
}

// Get handles GET /api/v1/transactions/:id
// @Summary Get one of the caller's transactions
// @Tags transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} entities.TransactionRecord
// @Failure 404 {object} entities.ErrorResponse
// @Security BearerAuth
// @Router /transactions/{id} [get]
func (h *TransactionHandlers) Get(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	record, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	SendSuccess(c, gin.H{
		"success":     true,
		"transaction": record,
	})
}

// Statistics handles GET /api/v1/transactions/stats
func (h *TransactionHandlers) Statistics(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	stats, err := h.service.Statistics(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	SendSuccess(c, gin.H{
		"success": true,
		"data":    stats,
	})
}

// QuickStats handles GET /api/v1/transactions/stats/quick
func (h *TransactionHandlers) QuickStats(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	stats, err := h.service.QuickStats(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	SendSuccess(c, gin.H{
		"success": true,
		"data":    stats,
	})
}

// Recent handles GET /api/v1/transactions/recent?limit=N
func (h *TransactionHandlers) Recent(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	records, err := h.service.Recent(c.Request.Context(), userID, parseIntParam(c, "limit", 10))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	SendSuccess(c, gin.H{
		"success":      true,
		"count":        len(records),
		"transactions": records,
	})
}

// Export handles GET /api/v1/transactions/export?format=csv|json
func (h *TransactionHandlers) Export(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" {
		respondBadRequest(c, "format must be json or csv")
		return
	}

	records, err := h.service.ExportRecords(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	if format == "csv" {
		var buf bytes.Buffer
		if err := transaction.WriteCSV(&buf, records); err != nil {
			h.logger.Error("Failed to render csv export", "user_id", userID, "error", err)
			respondInternalError(c, MsgInternalError)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions_%s.csv"`, stamp))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="transactions_%s.json"`, stamp))
	SendSuccess(c, gin.H{
		"success":      true,
		"exported_at":  time.Now().UTC(),
		"count":        len(records),
		"transactions": records,
	})
}
