package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc, auth AuthFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New(Config{Provider: "test", BaseURL: server.URL, Timeout: 5 * time.Second, MaxRetries: 3}, auth, nil)
	c.retry.BaseDelay = time.Millisecond
	c.retry.MaxDelay = 2 * time.Millisecond
	c.retry.Jitter = false
	return c
}

func TestDoInto_RetriesIdempotentCalls(t *testing.T) {
	var calls int32
	c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "USDT", r.URL.Query().Get("coinFrom"))
		w.Write([]byte(`{"rate":"1.5"}`))
	}, nil)

	var out struct {
		Rate string `json:"rate"`
	}
	err := c.DoInto(context.Background(), Request{
		Operation: "rate",
		Path:      "/rate",
		Query:     url.Values{"coinFrom": {"USDT"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1.5", out.Rate)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_PostIsNeverRetried(t *testing.T) {
	var calls int32
	c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/transactions", Body: map[string]string{"a": "b"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_APIErrorCarriesBody(t *testing.T) {
	c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Amount to exchange is below the minimal: 10.5"}}`))
	}, nil)

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/estimate", Body: map[string]int{"amount": 1}})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.True(t, apiErr.IsClientError())
	assert.Equal(t, "Amount to exchange is below the minimal: 10.5", apiErr.Message)
	assert.IsType(t, map[string]interface{}{}, apiErr.Details())
}

func TestDo_AuthSeesBody(t *testing.T) {
	c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "13", r.Header.Get("X-Body-Len"))
		w.Write([]byte(`{}`))
	}, func(req *http.Request, body []byte) error {
		req.Header.Set("Authorization", "Bearer key")
		req.Header.Set("X-Body-Len", strconv.Itoa(len(body)))
		return nil
	})

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "x", RawBody: []byte(`{"a":"hello"}`)})
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	c := New(Config{Provider: "p", BaseURL: "https://api.example.com/v2/"}, nil, nil)
	u, err := c.resolve("/rate", url.Values{"a": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v2/rate?a=1", u)

	u, err = c.resolve("https://other.example.com/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x", u)
}
