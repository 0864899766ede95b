package securestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
)

// ReadPolicy decides what a failing read means.
type ReadPolicy int

const (
	// ReadStrict propagates storage errors from reads.
	ReadStrict ReadPolicy = iota
	// ReadLenient treats an unreadable value as absent and logs a warning.
	ReadLenient
)

func (p ReadPolicy) String() string {
	if p == ReadLenient {
		return "lenient"
	}
	return "strict"
}

// ParseReadPolicy accepts "strict" or "lenient". Empty means strict.
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ReadStrict, nil
	case "lenient":
		return ReadLenient, nil
	default:
		return ReadStrict, fmt.Errorf("unknown read policy %q (want strict or lenient)", s)
	}
}

// TokenPair is the credential pair issued by verify and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Keychain is the client's view of secure storage.
type Keychain struct {
	store  Store
	policy ReadPolicy
	logger *log.Logger
}

// Option configures a Keychain.
type Option func(*Keychain)

// WithReadPolicy sets the read-failure policy.
func WithReadPolicy(p ReadPolicy) Option {
	return func(k *Keychain) { k.policy = p }
}

// WithLogger sets the logger used for lenient-read warnings.
func WithLogger(l *log.Logger) Option {
	return func(k *Keychain) { k.logger = l }
}

// NewKeychain wraps store. The default policy is ReadStrict.
func NewKeychain(store Store, opts ...Option) *Keychain {
	k := &Keychain{store: store}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = log.OrDefault(k.logger).With("component", "securestore")
	return k
}

// Store returns the wrapped backend.
func (k *Keychain) Store() Store {
	return k.store
}

// Policy returns the configured read policy.
func (k *Keychain) Policy() ReadPolicy {
	return k.policy
}

// Set writes value under key. Errors always propagate.
func (k *Keychain) Set(ctx context.Context, key, value string) error {
	return storageErr("set", key, k.store.Set(ctx, key, value))
}

// Get returns the value and whether it was present.
func (k *Keychain) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := k.store.Get(ctx, key)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case k.policy == ReadLenient && !errors.Is(err, context.Canceled):
		k.logger.WarnContext(ctx, "treating unreadable key as absent", "key", key, "error", err.Error())
		return "", false, nil
	default:
		return "", false, storageErr("get", key, err)
	}
}

// Has reports whether key is present.
func (k *Keychain) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := k.Get(ctx, key)
	return ok, err
}

// Remove deletes key. Removing an absent key is not an error.
func (k *Keychain) Remove(ctx context.Context, key string) error {
	return storageErr("remove", key, k.store.Remove(ctx, key))
}

// Clear removes every key in AllKeys. It attempts all of them and joins
// the failures.
func (k *Keychain) Clear(ctx context.Context) error {
	return k.removeAll(ctx, AllKeys)
}

// ClearTokens removes only the access and refresh tokens.
func (k *Keychain) ClearTokens(ctx context.Context) error {
	return k.removeAll(ctx, TokenKeys)
}

func (k *Keychain) removeAll(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := k.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AccessToken returns the stored access token.
func (k *Keychain) AccessToken(ctx context.Context) (string, bool, error) {
	return k.Get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token.
func (k *Keychain) RefreshToken(ctx context.Context) (string, bool, error) {
	return k.Get(ctx, KeyRefreshToken)
}

// SaveTokens writes both tokens. The access token is written first so a
// reader never sees a new refresh token paired with a stale access token.
func (k *Keychain) SaveTokens(ctx context.Context, pair TokenPair) error {
	if err := k.Set(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return err
	}
	return k.Set(ctx, KeyRefreshToken, pair.RefreshToken)
}

// DeviceID returns the cached per-install identifier.
func (k *Keychain) DeviceID(ctx context.Context) (string, bool, error) {
	return k.Get(ctx, KeyDeviceID)
}

// SetDeviceID caches the per-install identifier.
func (k *Keychain) SetDeviceID(ctx context.Context, id string) error {
	return k.Set(ctx, KeyDeviceID, id)
}

// DeviceRegistered reports whether this install has been registered.
func (k *Keychain) DeviceRegistered(ctx context.Context) (bool, error) {
	v, ok, err := k.Get(ctx, KeyDeviceRegistered)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

// SetDeviceRegistered stores "true" or removes the flag.
func (k *Keychain) SetDeviceRegistered(ctx context.Context, registered bool) error {
	if !registered {
		return k.Remove(ctx, KeyDeviceRegistered)
	}
	return k.Set(ctx, KeyDeviceRegistered, "true")
}
