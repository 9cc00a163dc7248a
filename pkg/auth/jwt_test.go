package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore map[string][]byte

func (m memStore) Get(_ context.Context, key string, dest interface{}) error {
	b, ok := m[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(b, dest)
}

func (m memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m[key]
	return ok, nil
}

func TestValidator_Validate(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateAccessToken(userID, "a@b.c", "user", "secret", "users-service", time.Hour)
	require.NoError(t, err)

	claims, err := NewValidator("secret", "users-service", nil).Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)

	_, err = NewValidator("other", "", nil).Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewValidator("secret", "someone-else", nil).Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_Expired(t *testing.T) {
	token, err := GenerateAccessToken(uuid.New(), "", "", "secret", "", -time.Minute)
	require.NoError(t, err)
	_, err = NewValidator("secret", "", nil).Validate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_SubjectFallback(t *testing.T) {
	userID := uuid.New()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := NewValidator("secret", "", nil).Validate(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestValidator_Revocation(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	blacklist := NewTokenBlacklist(store)
	v := NewValidator("secret", "", blacklist)

	userID := uuid.New()
	token, err := GenerateAccessToken(userID, "", "", "secret", "", time.Hour)
	require.NoError(t, err)

	_, err = v.Validate(ctx, token)
	require.NoError(t, err)

	store[blacklistPrefix+HashToken(token)] = []byte(`1`)
	_, err = v.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other := uuid.New()
	otherToken, err := GenerateAccessToken(other, "", "", "secret", "", time.Hour)
	require.NoError(t, err)
	store[blacklistPrefix+"user:"+other.String()] = []byte(`9999999999`)
	_, err = v.Validate(ctx, otherToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
