package loyaltytwin

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenWrongUse = errors.New("token used for the wrong purpose")
)

// Claims are the JWT claims the twin signs.
//
// Generation ties an access token to the customer's revocation counter so
// the admin surface can force 401s without waiting for expiry.
type Claims struct {
	jwt.RegisteredClaims

	Type       string `json:"typ"`
	Generation int    `json:"gen,omitempty"`
}

// TokenIssuer signs and validates the twin's HS256 tokens.
type TokenIssuer struct {
	signingKey []byte
	issuer     string

	accessDuration  time.Duration
	refreshDuration time.Duration

	now func() time.Time
}

// NewTokenIssuer creates an issuer. Access tokens last an hour and refresh
// tokens a week unless WithTokenDuration says otherwise.
func NewTokenIssuer(signingKey []byte, issuer string) *TokenIssuer {
	return &TokenIssuer{
		signingKey:      signingKey,
		issuer:          issuer,
		accessDuration:  time.Hour,
		refreshDuration: 7 * 24 * time.Hour,
		now:             time.Now,
	}
}

// WithTokenDuration sets custom token lifetimes.
func (ti *TokenIssuer) WithTokenDuration(access, refresh time.Duration) *TokenIssuer {
	ti.accessDuration = access
	ti.refreshDuration = refresh
	return ti
}

// WithClock replaces the time source used for issuing and validating.
func (ti *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	ti.now = now
	return ti
}

// Issue signs a token of the given type for a customer.
func (ti *TokenIssuer) Issue(customerID, typ string, generation int) (string, Claims, error) {
	if customerID == "" {
		return "", Claims{}, fmt.Errorf("issue %s token: empty subject", typ)
	}

	ttl := ti.accessDuration
	if typ == TokenRefresh {
		ttl = ti.refreshDuration
	}

	now := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   customerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Type:       typ,
		Generation: generation,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.signingKey)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// Validate parses a token and checks signature, issuer, expiry and type.
func (ti *TokenIssuer) Validate(token, typ string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return ti.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Type != typ {
		return nil, ErrTokenWrongUse
	}
	return claims, nil
}
