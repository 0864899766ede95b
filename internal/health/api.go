package health

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Transport fetches raw response bodies. *gateway.Client implements it.
type Transport interface {
	GetRaw(ctx context.Context, path string) ([]byte, error)
}

// API wraps the informational endpoints of the loyalty API.
type API struct {
	api Transport
}

// NewAPI returns an API.
func NewAPI(api Transport) *API {
	return &API{api: api}
}

// Ping calls GET /health and returns the body text.
func (a *API) Ping(ctx context.Context) (string, error) {
	body, err := a.api.GetRaw(ctx, "/health")
	if err != nil {
		return "", fmt.Errorf("health: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// Env calls GET /env and returns the JSON document as sent.
func (a *API) Env(ctx context.Context) (json.RawMessage, error) {
	body, err := a.api.GetRaw(ctx, "/env")
	if err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("env: response is not JSON")
	}
	return json.RawMessage(body), nil
}

// Root calls GET / and returns the banner.
func (a *API) Root(ctx context.Context) (string, error) {
	body, err := a.api.GetRaw(ctx, "/")
	if err != nil {
		return "", fmt.Errorf("root: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
