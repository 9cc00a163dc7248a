package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/infrastructure/cache/cachetest"
)

func setupRouter(store Store, status *int) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(Middleware(store, 0, zap.NewNop()))
	r.POST("/exolix/create-transaction", func(c *gin.Context) {
		calls++
		c.JSON(*status, gin.H{"success": *status < 300, "call": calls})
	})
	return r, &calls
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/exolix/create-transaction", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	status := http.StatusOK
	r, calls := setupRouter(cachetest.New(), &status)

	first := post(r, "create-0001", `{"amount":100}`)
	second := post(r, "create-0001", `{"amount":100}`)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestMiddleware_DifferentBodyConflicts(t *testing.T) {
	status := http.StatusOK
	r, calls := setupRouter(cachetest.New(), &status)

	post(r, "create-0002", `{"amount":100}`)
	w := post(r, "create-0002", `{"amount":200}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, *calls)
}

func TestMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	status := http.StatusBadGateway
	r, calls := setupRouter(cachetest.New(), &status)

	post(r, "create-0003", `{}`)
	status = http.StatusOK
	w := post(r, "create-0003", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, *calls)
}

func TestMiddleware_InvalidAndMissingKeys(t *testing.T) {
	status := http.StatusOK
	r, calls := setupRouter(cachetest.New(), &status)

	assert.Equal(t, http.StatusBadRequest, post(r, "bad key!", `{}`).Code)
	post(r, "", `{}`)
	post(r, "", `{}`)
	assert.Equal(t, 2, *calls)
}

func TestMiddleware_InFlightConflicts(t *testing.T) {
	status := http.StatusOK
	store := cachetest.New()
	r, calls := setupRouter(store, &status)

	// a reservation left by a request that has not finished
	_, _ = store.SetNX(context.Background(), "idem:POST:/exolix/create-transaction::create-0004", Record{RequestHash: HashRequest([]byte(`{}`))}, inFlightTTL)

	w := post(r, "create-0004", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, *calls)
}
