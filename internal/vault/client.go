package vault

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment variables read by NewClient when the matching Config field
// is empty. They follow the Vault CLI.
const (
	EnvToken  = "VAULT_TOKEN"
	EnvCACert = "VAULT_CACERT"
)

// Client talks to one KV v2 mount of a Vault server. The secure store uses
// it to keep tokens off the local disk.
type Client struct {
	address   string
	token     string
	mountPath string
	namespace string

	httpClient *http.Client
}

// Config configures a Client. Address is required; Token falls back to
// VAULT_TOKEN and CACert to VAULT_CACERT.
type Config struct {
	Address   string
	Token     string
	MountPath string // default "secret"
	Namespace string // Vault Enterprise only

	// CACert is a PEM bundle used instead of the system roots.
	CACert string

	// Timeout bounds every request. Defaults to 10s.
	Timeout time.Duration

	// HTTPClient replaces the transport entirely. Tests use it with httptest.
	HTTPClient *http.Client
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv(EnvToken)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required (set %s)", EnvToken)
	}
	if cfg.CACert == "" {
		cfg.CACert = os.Getenv(EnvCACert)
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		tlsCfg, err := tlsConfig(cfg.CACert)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
			Timeout:   cfg.Timeout,
		}
	}

	return &Client{
		address:    strings.TrimRight(cfg.Address, "/"),
		token:      cfg.Token,
		mountPath:  strings.Trim(cfg.MountPath, "/"),
		namespace:  cfg.Namespace,
		httpClient: httpClient,
	}, nil
}

func tlsConfig(caCert string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caCert)
	if err != nil {
		return nil, fmt.Errorf("read vault CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", caCert)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// newRequest builds a request for /v1/<path>, JSON-encoding payload when it
// is not nil.
func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode vault request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.address+"/v1/"+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Vault-Token", c.token)
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}
	return req, nil
}

// Health reports an error when the server is sealed, uninitialised or
// unreachable. Standby nodes (429) count as healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "sys/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("vault unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// MountPath returns the KV mount.
func (c *Client) MountPath() string { return c.mountPath }

// Address returns the server address without a trailing slash.
func (c *Client) Address() string { return c.address }
