package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSecretNotFound is returned when no live version exists at a path.
var ErrSecretNotFound = errors.New("vault: secret not found")

// Secret is one version of a KV v2 secret.
type Secret struct {
	Data     map[string]any  `json:"data"`
	Metadata *SecretMetadata `json:"metadata,omitempty"`
}

type SecretMetadata struct {
	CreatedTime  string `json:"created_time"`
	DeletionTime string `json:"deletion_time"`
	Destroyed    bool   `json:"destroyed"`
	Version      int    `json:"version"`
}

// KV reads and writes secrets under the client's mount.
type KV struct {
	client *Client
}

func (c *Client) KV() *KV {
	return &KV{client: c}
}

// do sends a request to <mount>/<kind>/<path>. kind is "data" for secret
// values and "metadata" for the version history.
func (kv *KV) do(ctx context.Context, method, kind, path string, payload any) (*http.Response, error) {
	req, err := kv.client.newRequest(ctx, method, kv.client.mountPath+"/"+kind+"/"+path, payload)
	if err != nil {
		return nil, err
	}
	return kv.client.httpClient.Do(req)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("vault %s: status %d: %s", op, resp.StatusCode, body)
}

// Put writes a new version of the secret at path.
func (kv *KV) Put(ctx context.Context, path string, data map[string]any) error {
	resp, err := kv.do(ctx, http.MethodPost, "data", path, map[string]any{"data": data})
	if err != nil {
		return fmt.Errorf("vault write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("write", resp)
	}
	return nil
}

// Get reads the latest version of the secret at path. A path that was
// never written or whose latest version is deleted yields
// ErrSecretNotFound.
func (kv *KV) Get(ctx context.Context, path string) (*Secret, error) {
	resp, err := kv.do(ctx, http.MethodGet, "data", path, nil)
	if err != nil {
		return nil, fmt.Errorf("vault read: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	default:
		return nil, statusError("read", resp)
	}

	var envelope struct {
		Data *Secret `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("vault read: decode: %w", err)
	}
	if envelope.Data == nil || envelope.Data.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	return envelope.Data, nil
}

// Delete removes every version of the secret at path along with its
// metadata. A missing path is not an error.
func (kv *KV) Delete(ctx context.Context, path string) error {
	resp, err := kv.do(ctx, http.MethodDelete, "metadata", path, nil)
	if err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError("delete", resp)
	}
}
