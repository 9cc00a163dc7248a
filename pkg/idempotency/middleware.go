package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the maximum request body size for idempotency (10MB)
	MaxBodySize = 10 << 20

	// DefaultTTL is how long a stored response is replayed
	DefaultTTL = 24 * time.Hour

	inFlightTTL = time.Minute
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)

// Store is the cache surface the middleware needs
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Del(ctx context.Context, keys ...string) error
}

// Record is a stored response
type Record struct {
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body,omitempty"`
	Complete    bool   `json:"complete"`
}

// responseWriter wraps gin.ResponseWriter to capture response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// ValidateKey checks the header value shape
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("idempotency key must be 8-128 characters of letters, digits, '-', '_', ':' or '.'")
	}
	return nil
}

// HashRequest fingerprints a request body
func HashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func storeKey(c *gin.Context, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s:%s", c.Request.Method, c.FullPath(), c.GetString("user_id"), key)
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// A key reused with a different body, or while the first request is still
// running, is a 409. Server errors are not stored so the client may retry.
func Middleware(store Store, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(HeaderIdempotencyKey)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		if err := ValidateKey(idempotencyKey); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"message":    "Invalid idempotency key",
				"details":    err.Error(),
				"request_id": c.GetString("request_id"),
			})
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"message":    "Failed to read request body",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		ctx := c.Request.Context()
		key := storeKey(c, idempotencyKey)
		requestHash := HashRequest(bodyBytes)

		reserved, err := store.SetNX(ctx, key, Record{RequestHash: requestHash}, inFlightTTL)
		if err != nil {
			logger.Error("Failed to reserve idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
			// fail open
			c.Next()
			return
		}

		if !reserved {
			var existing Record
			if err := store.Get(ctx, key, &existing); err != nil {
				logger.Error("Failed to load idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
				c.Next()
				return
			}
			switch {
			case existing.RequestHash != requestHash:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success":    false,
					"message":    "Idempotency key reused with a different request body",
					"request_id": c.GetString("request_id"),
				})
			case !existing.Complete:
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success":    false,
					"message":    "A request with this idempotency key is still in progress",
					"request_id": c.GetString("request_id"),
				})
			default:
				logger.Info("Replaying stored response", zap.String("idempotency_key", idempotencyKey), zap.Int("status", existing.Status))
				c.Header("Idempotent-Replayed", "true")
				c.Data(existing.Status, "application/json; charset=utf-8", existing.Body)
				c.Abort()
			}
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		if writer.status >= http.StatusInternalServerError {
			if err := store.Del(context.Background(), key); err != nil {
				logger.Warn("Failed to release idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
			}
			return
		}

		record := Record{
			RequestHash: requestHash,
			Status:      writer.status,
			Body:        writer.body.Bytes(),
			Complete:    true,
		}
		if err := store.Set(context.Background(), key, record, ttl); err != nil {
			logger.Error("Failed to store idempotency key", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		}
	}
}
