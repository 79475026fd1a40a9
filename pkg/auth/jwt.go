package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenRevoked is returned for tokens that were logged out.
var ErrTokenRevoked = errors.New("token has been revoked")

// Claims represents JWT claims
type Claims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret    []byte
	blacklist *TokenBlacklist
	now       func() time.Time
}

// NewTokenIssuer creates an issuer. blacklist may be nil.
func NewTokenIssuer(secret string, blacklist *TokenBlacklist) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), blacklist: blacklist, now: time.Now}
}

// Issue returns a signed token for subjectID acting as role.
func (i *TokenIssuer) Issue(subjectID, role string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := &Claims{
		AccountID: subjectID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates signature and expiry and returns the claims.
func (i *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// VerifyActive is Verify plus a blacklist check.
func (i *TokenIssuer) VerifyActive(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	if i.blacklist != nil {
		revoked, err := i.blacklist.IsRevoked(ctx, tokenString)
		if err != nil {
			return nil, fmt.Errorf("failed to check blacklist: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke blacklists tokenString until it would have expired anyway.
func (i *TokenIssuer) Revoke(ctx context.Context, tokenString string, claims *Claims) error {
	if i.blacklist == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return i.blacklist.Revoke(ctx, tokenString, claims.AccountID, claims.ExpiresAt.Sub(i.now()))
}
