package health

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

// Pinger is satisfied by *API.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// APIChecker reports whether the loyalty API answers /health.
type APIChecker struct {
	api Pinger
}

// NewAPIChecker returns an APIChecker.
func NewAPIChecker(api Pinger) *APIChecker {
	return &APIChecker{api: api}
}

func (c *APIChecker) Name() string { return "api" }

func (c *APIChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	body, err := c.api.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		r := Unhealthy("loyalty API unreachable").WithLatency(latency).WithDetail("error", err.Error())
		if status := gateway.StatusCode(err); status > 0 {
			r.Message = "loyalty API returned an error"
			r.WithDetail("status", status)
		}
		return r
	}
	return Healthy("loyalty API is up").WithLatency(latency).WithDetail("response", body)
}

// StoreChecker reads a key straight from the backend, bypassing the
// keychain's read policy so a lenient policy cannot hide a broken store.
type StoreChecker struct {
	backend string
	store   securestore.Store
}

// NewStoreChecker returns a StoreChecker. backend is only reported.
func NewStoreChecker(backend string, store securestore.Store) *StoreChecker {
	return &StoreChecker{backend: backend, store: store}
}

func (c *StoreChecker) Name() string { return "store" }

func (c *StoreChecker) Check(ctx context.Context) *Result {
	_, err := c.store.Get(ctx, securestore.KeyAccessToken)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		return Unhealthy("credential store unreadable").
			WithDetail("backend", c.backend).
			WithDetail("error", err.Error())
	}
	return Healthy("credential store readable").WithDetail("backend", c.backend)
}

// TokenReader is satisfied by *securestore.Keychain.
type TokenReader interface {
	AccessToken(ctx context.Context) (string, bool, error)
	RefreshToken(ctx context.Context) (string, bool, error)
}

// SessionChecker inspects the stored tokens without calling the API.
type SessionChecker struct {
	tokens TokenReader
	now    func() time.Time
}

// NewSessionChecker returns a SessionChecker.
func NewSessionChecker(tokens TokenReader) *SessionChecker {
	return &SessionChecker{tokens: tokens, now: time.Now}
}

func (c *SessionChecker) Name() string { return "session" }

func (c *SessionChecker) Check(ctx context.Context) *Result {
	access, ok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return Unhealthy("cannot read access token").WithDetail("error", err.Error())
	}
	if !ok || access == "" {
		return Degraded("not signed in")
	}

	exp, hasExp := gateway.TokenExpiry(access)
	if !hasExp || c.now().Before(exp) {
		r := Healthy("signed in")
		if hasExp {
			r.WithDetail("expires_at", exp.UTC().Format(time.RFC3339))
		}
		return r
	}

	refresh, ok, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return Unhealthy("cannot read refresh token").WithDetail("error", err.Error())
	}
	if !ok || refresh == "" {
		return Unhealthy("access token expired and no refresh token stored").
			WithDetail("expired_at", exp.UTC().Format(time.RFC3339))
	}
	return Degraded("access token expired; it will be refreshed on the next call").
		WithDetail("expired_at", exp.UTC().Format(time.RFC3339))
}
