package gateway

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim without verifying the signature. It is
// only used to decide when to refresh; authorization stays with the server.
func TokenExpiry(raw string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether raw carries an exp claim at or before now.
// Opaque tokens and tokens without exp are never considered expired.
func TokenExpired(raw string, now time.Time) bool {
	exp, ok := TokenExpiry(raw)
	return ok && !now.Before(exp)
}
