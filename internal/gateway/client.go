// Package gateway is the single HTTP client for the loyalty API.
//
// Every call reads the access token from the configured TokenSource and
// attaches it as a bearer token. Failures come back as *APIError. A 401 on
// an authenticated call triggers one token refresh and one retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
	"github.com/felixgeelhaar/coffeeclub/internal/version"
)

const (
	// DefaultBaseURL matches the development backend.
	DefaultBaseURL = "http://localhost:5050"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second
	// DefaultRefreshPath exchanges a refresh token for a new pair.
	DefaultRefreshPath = "/account/refresh"
)

// TokenSource supplies and persists credentials. *securestore.Keychain
// implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool, error)
	RefreshToken(ctx context.Context) (string, bool, error)
	SaveTokens(ctx context.Context, pair securestore.TokenPair) error
}

// RequestValidator checks an outgoing request before it is sent.
type RequestValidator interface {
	ValidateRequest(ctx context.Context, method, path string, body []byte) error
}

// Observer is told about every HTTP exchange and every token refresh.
// status is 0 when no response was received.
type Observer interface {
	ObserveRequest(method, path string, status int, duration time.Duration)
	ObserveRefresh(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, int, time.Duration) {}
func (nopObserver) ObserveRefresh(error)                              {}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string
	UserAgent   string

	// Tokens may be nil, in which case no bearer header is ever sent.
	Tokens TokenSource

	// Validator, when set, rejects requests that violate the API contract.
	Validator RequestValidator

	HTTPClient *http.Client
	Logger     *log.Logger
	Observer   Observer

	// Now is used for token expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Client is the API gateway client.
type Client struct {
	baseURL     string
	refreshPath string
	userAgent   string
	httpClient  *http.Client
	tokens      TokenSource
	validator   RequestValidator
	logger      *log.Logger
	observer    Observer
	now         func() time.Time

	refreshGroup singleflight.Group
}

// New creates a gateway client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.GetInfo().UserAgent()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	// The client is copied so the configured timeout never leaks into a
	// shared *http.Client.
	hc := *httpClient
	hc.Timeout = cfg.Timeout

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		refreshPath: cfg.RefreshPath,
		userAgent:   cfg.UserAgent,
		httpClient:  &hc,
		tokens:      cfg.Tokens,
		validator:   cfg.Validator,
		logger:      log.OrDefault(cfg.Logger).With("component", "gateway"),
		observer:    cfg.Observer,
		now:         cfg.Now,
	}, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Get sends a GET and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out (may be nil).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put sends body as JSON and decodes the response into out (may be nil).
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// GetRaw sends a GET and returns the raw response body.
func (c *Client) GetRaw(ctx context.Context, path string) ([]byte, error) {
	var raw rawBody
	if err := c.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type rawBody []byte

// Do performs one logical call: bearer attach, send, and on a 401 a single
// refresh followed by one retry.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request body: %w", err)
		}
	}

	if c.validator != nil {
		if err := c.validator.ValidateRequest(ctx, method, path, payload); err != nil {
			return &APIError{
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrContractViolation, err),
			}
		}
	}

	token, refreshed, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	resp, reqID, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" && !refreshed {
		original := readHTTPError(resp, reqID)

		newToken, rerr := c.refresh(ctx, token)
		if rerr != nil {
			c.logger.WithContext(log.ContextWithRequestID(ctx, reqID)).
				WarnContext(ctx, "token refresh failed", "error", rerr.Error())
			return original
		}

		resp, reqID, err = c.send(ctx, method, path, payload, newToken)
		if err != nil {
			return err
		}
	}

	return c.parse(resp, reqID, out)
}

// bearer returns the token to attach. An access token whose exp has passed
// is refreshed before use; refreshed reports that this already happened.
func (c *Client) bearer(ctx context.Context) (string, bool, error) {
	if c.tokens == nil {
		return "", false, nil
	}

	token, ok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", false, fmt.Errorf("gateway: read access token: %w", err)
	}
	if !ok || token == "" {
		return "", false, nil
	}

	if !TokenExpired(token, c.now()) {
		return token, false, nil
	}

	fresh, err := c.refresh(ctx, token)
	if err != nil {
		c.logger.DebugContext(ctx, "proactive refresh failed, sending stored token", "error", err.Error())
		return token, true, nil
	}
	return fresh, true, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, string, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, reqID, fmt.Errorf("gateway: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger := c.logger.WithContext(log.ContextWithRequestID(ctx, reqID))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest(method, path, 0, time.Since(start))
		logger.DebugContext(ctx, "api request failed", "method", method, "path", path, "error", err.Error())
		return nil, reqID, &APIError{
			Message:   err.Error(),
			RequestID: reqID,
			Err:       err,
		}
	}

	c.observer.ObserveRequest(method, path, resp.StatusCode, time.Since(start))
	logger.DebugContext(ctx, "api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	return resp, reqID, nil
}

func readHTTPError(resp *http.Response, reqID string) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return newHTTPError(resp.StatusCode, body, reqID)
}

func (c *Client) parse(resp *http.Response, reqID string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readHTTPError(resp, reqID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: err.Error(), RequestID: reqID, Err: err}
	}

	switch target := out.(type) {
	case nil:
		return nil
	case *rawBody:
		*target = body
		return nil
	default:
		if len(bytes.TrimSpace(body)) == 0 {
			return fmt.Errorf("%w: empty body", ErrDecode)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil
	}
}
