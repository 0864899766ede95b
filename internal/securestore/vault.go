package securestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/felixgeelhaar/coffeeclub/internal/vault"
)

// VaultStore keeps each key as a KV v2 secret at <prefix>/<key> holding
// {"value": ...}.
type VaultStore struct {
	kv     *vault.KV
	client *vault.Client
	prefix string
}

// NewVaultStore returns a store rooted at prefix on the client's KV mount.
func NewVaultStore(client *vault.Client, prefix string) *VaultStore {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "coffeeclub"
	}
	return &VaultStore{kv: client.KV(), client: client, prefix: prefix}
}

func (v *VaultStore) secretPath(key string) string {
	return path.Join(v.prefix, key)
}

func (v *VaultStore) Set(ctx context.Context, key, value string) error {
	err := v.kv.Put(ctx, v.secretPath(key), map[string]interface{}{"value": value})
	return storageErr("set", key, err)
}

func (v *VaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.kv.Get(ctx, v.secretPath(key))
	if errors.Is(err, vault.ErrSecretNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", storageErr("get", key, err)
	}

	value, ok := secret.Data["value"].(string)
	if !ok {
		return "", storageErr("get", key, fmt.Errorf("secret has no string value"))
	}
	return value, nil
}

func (v *VaultStore) Remove(ctx context.Context, key string) error {
	return storageErr("remove", key, v.kv.Delete(ctx, v.secretPath(key)))
}

// Ping checks that Vault is reachable.
func (v *VaultStore) Ping(ctx context.Context) error {
	return v.client.Health(ctx)
}
