// Package auth provides authentication helpers for the Perfect Pic SDK.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a bearer token is not a three-segment JWT.
var ErrNotJWT = errors.New("auth: token is not a JWT")

// Claims encodes the JWT claims embedded into the token /api/login returns.
//
// The SDK never holds the signing key, so the claims are informational only:
// the server stays the authority on whether a token is valid.
type Claims struct {
	UserID   int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Admin    bool   `json:"admin,omitempty"`

	jwt.RegisteredClaims
}

// ParseClaims decodes the claims of token without verifying its signature.
func ParseClaims(token string) (Claims, error) {
	t := strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(t), "bearer ") {
		t = strings.TrimSpace(t[7:])
	}
	if strings.Count(t, ".") != 2 {
		return Claims{}, ErrNotJWT
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(t, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: parse claims: %w", err)
	}
	return claims, nil
}

// ExpiresAtTime returns the expiry, or the zero time when the token has none.
func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the token has expired at now. Tokens without an
// expiry never expire client-side.
func (c Claims) Expired(now time.Time) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && !now.Before(exp)
}
