package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogate/gateway_service/pkg/auth"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const testSecret = "test-jwt-secret-with-enough-length"

func TestRoutePolicy_Resolve(t *testing.T) {
	policy := NewRoutePolicy("/api/v1",
		[]string{"meld/*", "exolix/transactions", "/transactions/*"},
		[]string{"onramp/create-transaction"})

	tests := []struct {
		route string
		want  AuthPolicy
	}{
		{"/api/v1/meld/quote", AuthRequired},
		{"/api/v1/meld/transaction-status/:id", AuthRequired},
		{"/api/v1/meld/webhook", AuthNone},
		{"/api/v1/onramp/webhook", AuthNone},
		{"/api/v1/exolix/transactions", AuthRequired},
		{"/api/v1/exolix/quote", AuthOptional},
		{"/api/v1/transactions", AuthRequired},
		{"/api/v1/transactions/stats/quick", AuthRequired},
		{"/api/v1/onramp/create-transaction", AuthOptional},
		{"/api/v1/changelly/currencies", AuthOptional},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Resolve(tt.route))
		})
	}
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	policy := NewRoutePolicy("/api/v1", []string{"transactions/*"}, nil)
	validator := auth.NewValidator(testSecret, "gateway", nil)

	router := gin.New()
	router.Use(Authentication(policy, validator, logger.NewNop()))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	}
	router.GET("/api/v1/transactions", handler)
	router.POST("/api/v1/simpleswap/quote", handler)
	router.POST("/api/v1/meld/webhook", handler)
	return router
}

func authRequest(method, path, header string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestAuthentication(t *testing.T) {
	router := newAuthRouter(t)
	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, "user@example.com", "user", testSecret, "gateway", time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateAccessToken(userID, "user@example.com", "user", testSecret, "gateway", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"required without token", http.MethodGet, "/api/v1/transactions", "", http.StatusUnauthorized, ""},
		{"required with malformed header", http.MethodGet, "/api/v1/transactions", "Token abc", http.StatusUnauthorized, ""},
		{"required with expired token", http.MethodGet, "/api/v1/transactions", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"required with valid token", http.MethodGet, "/api/v1/transactions", "Bearer " + token, http.StatusOK, userID.String()},
		{"optional anonymous", http.MethodPost, "/api/v1/simpleswap/quote", "", http.StatusOK, ""},
		{"optional with invalid token", http.MethodPost, "/api/v1/simpleswap/quote", "Bearer garbage", http.StatusOK, ""},
		{"optional with valid token", http.MethodPost, "/api/v1/simpleswap/quote", "Bearer " + token, http.StatusOK, userID.String()},
		{"webhook ignores token", http.MethodPost, "/api/v1/meld/webhook", "Bearer " + token, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authRequest(tt.method, tt.path, tt.header))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":"`+tt.wantUser+`"`)
			}
		})
	}
}
