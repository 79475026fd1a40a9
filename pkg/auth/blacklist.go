package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jordanlanch/refertrack/pkg/cache"
)

const revokedPrefix = "revoked_token:"

// TokenBlacklist remembers logged-out tokens in redis until they expire.
// Entries hold the owning account ID so a key can be traced back.
type TokenBlacklist struct {
	cache *cache.Client
}

// NewTokenBlacklist creates a blacklist backed by c.
func NewTokenBlacklist(c *cache.Client) *TokenBlacklist {
	return &TokenBlacklist{cache: c}
}

// Revoke records token for ttl. A non-positive ttl means the token is already
// dead and nothing is stored.
func (b *TokenBlacklist) Revoke(ctx context.Context, token, accountID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.cache.Set(ctx, revokedKey(token), accountID, ttl)
}

// IsRevoked reports whether token was logged out.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, revokedKey(token))
}

// Raw tokens never reach redis, only their digest.
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedPrefix + hex.EncodeToString(sum[:])
}
