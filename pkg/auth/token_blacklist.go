package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const blacklistPrefix = "token:blacklist:"

// Store is the read-only key-value surface the blacklist needs. The shared
// Redis cache client satisfies it.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Exists(ctx context.Context, key string) (bool, error)
}

// TokenBlacklist reads token revocations written by the users service to
// the shared Redis. Keys are token:blacklist:<sha256 of token> and
// token:blacklist:user:<id> holding the unix time of a user-wide revocation.
type TokenBlacklist struct {
	store Store
}

// NewTokenBlacklist creates a new token blacklist
func NewTokenBlacklist(store Store) *TokenBlacklist {
	return &TokenBlacklist{store: store}
}

// HashToken is the blacklist key suffix of a raw token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsRevoked implements RevocationChecker
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string, claims *Claims) (bool, error) {
	exists, err := b.store.Exists(ctx, blacklistPrefix+HashToken(token))
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if exists {
		return true, nil
	}

	userKey := blacklistPrefix + "user:" + claims.UserID.String()
	exists, err = b.store.Exists(ctx, userKey)
	if err != nil || !exists {
		return false, err
	}
	var revokedAt int64
	if err := b.store.Get(ctx, userKey, &revokedAt); err != nil {
		return false, fmt.Errorf("failed to check user blacklist: %w", err)
	}
	if claims.IssuedAt == nil {
		return true, nil
	}
	// issued before the user-wide revocation
	return claims.IssuedAt.Unix() < revokedAt, nil
}
