package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingWindow struct {
	hits map[string]int64
	err  error
}

func (w *countingWindow) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	n := w.hits[key]
	w.hits[key] = n + 1
	return n, nil
}

func TestTieredLimiter_EndpointTier(t *testing.T) {
	w := &countingWindow{hits: map[string]int64{}}
	l := NewTieredLimiter(w, TieredConfig{
		IPLimit:  100,
		IPWindow: time.Minute,
		EndpointLimits: map[string]EndpointLimit{
			"create-transaction": {Limit: 2, Window: time.Minute},
		},
	}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "10.0.0.1", "", "create-transaction")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Check(ctx, "10.0.0.1", "", "create-transaction")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "endpoint", res.LimitedBy)
	assert.Equal(t, time.Minute, res.RetryAfter)

	// another endpoint only sees the IP tier
	res, err = l.Check(ctx, "10.0.0.1", "", "quote")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(96), res.Remaining)
}

func TestTieredLimiter_UserTierKeysOnUser(t *testing.T) {
	w := &countingWindow{hits: map[string]int64{}}
	l := NewTieredLimiter(w, TieredConfig{UserLimit: 1, UserWindow: time.Minute}, zap.NewNop())

	res, err := l.Check(context.Background(), "1.1.1.1", "user-a", "quote")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Check(context.Background(), "2.2.2.2", "user-a", "quote")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "user", res.LimitedBy)
}

func TestTieredLimiter_Error(t *testing.T) {
	l := NewTieredLimiter(&countingWindow{err: errors.New("redis down")}, TieredConfig{IPLimit: 1, IPWindow: time.Second}, zap.NewNop())
	_, err := l.Check(context.Background(), "1.1.1.1", "", "")
	assert.Error(t, err)
}
