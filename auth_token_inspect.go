package sdk

import (
	"time"

	"github.com/perfectpic/perfectpic/sdk/go/auth"
)

// SessionClaims returns the claims of the stored token. ok is false when no
// token is stored or the token is not a readable JWT.
func (c *Client) SessionClaims() (claims auth.Claims, ok bool) {
	if c == nil || c.tokens == nil {
		return auth.Claims{}, false
	}
	token := c.tokens.Token()
	if token == "" {
		return auth.Claims{}, false
	}
	claims, err := auth.ParseClaims(token)
	if err != nil {
		return auth.Claims{}, false
	}
	return claims, true
}

// SessionExpired reports whether the stored token is a JWT past its expiry.
// Opaque tokens are never considered expired; the server decides.
func (c *Client) SessionExpired(now time.Time) bool {
	claims, ok := c.SessionClaims()
	return ok && claims.Expired(now)
}
