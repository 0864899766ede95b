// Package securestore persists the customer's tokens and device state.
//
// A Store is a raw key/value backend (encrypted file, memory or Vault). A
// Keychain wraps one and adds the typed helpers and the read-failure policy
// the rest of the client relies on.
package securestore

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyAccessToken      = "accessToken"
	KeyRefreshToken     = "refreshToken"
	KeyDeviceRegistered = "deviceRegistered"
	KeyDeviceID         = "deviceId"
)

// AllKeys is the full set of keys the client ever writes. Clear removes
// exactly these.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyDeviceRegistered, KeyDeviceID}

// TokenKeys are the keys removed on logout.
var TokenKeys = []string{KeyAccessToken, KeyRefreshToken}

var (
	// ErrNotFound is returned by Store.Get when the key is absent.
	ErrNotFound = errors.New("securestore: key not found")

	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("securestore: storage failure")
)

// Store is a per-key atomic string store.
type Store interface {
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// StorageError reports a backend failure for a single key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("securestore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) true for any *StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
