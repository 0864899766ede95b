// Package device registers this installation with the loyalty API exactly
// once, behind a persisted flag.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
)

// Info is the registration payload (CreateDeviceDto on the wire).
type Info struct {
	DeviceID    string  `json:"deviceId" yaml:"device_id"`
	Type        *string `json:"type" yaml:"type"`
	Name        *string `json:"name" yaml:"name"`
	Brand       *string `json:"brand" yaml:"brand"`
	OS          *string `json:"os" yaml:"os"`
	OSVersion   *string `json:"osVersion" yaml:"os_version"`
	Model       *string `json:"model" yaml:"model"`
	IsSimulator bool    `json:"isSimulator" yaml:"is_simulator"`
}

// Transport posts the registration.
type Transport interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Registry persists the install id and the registered flag.
// *securestore.Keychain implements it.
type Registry interface {
	DeviceID(ctx context.Context) (string, bool, error)
	SetDeviceID(ctx context.Context, id string) error
	DeviceRegistered(ctx context.Context) (bool, error)
	SetDeviceRegistered(ctx context.Context, registered bool) error
}

// Service performs device registration.
type Service struct {
	api    Transport
	keys   Registry
	probe  Probe
	newID  func() string
	logger *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProbe replaces the host probe.
func WithProbe(p Probe) Option {
	return func(s *Service) { s.probe = p }
}

// WithIDGenerator replaces the install id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a Service.
func NewService(api Transport, keys Registry, opts ...Option) *Service {
	s := &Service{
		api:   api,
		keys:  keys,
		probe: HostProbe(),
		newID: func() string { return ksuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).With("component", "device")
	return s
}

// ID returns the per-install id, generating and caching it on first use.
// The id is time-ordered and random; it is not a security identifier.
func (s *Service) ID(ctx context.Context) (string, error) {
	id, ok, err := s.keys.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	id = s.newID()
	if err := s.keys.SetDeviceID(ctx, id); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return id, nil
}

// Info gathers the registration payload.
func (s *Service) Info(ctx context.Context) (Info, error) {
	id, err := s.ID(ctx)
	if err != nil {
		return Info{}, err
	}
	return s.probe.Collect(id), nil
}

// Registered reports the persisted flag.
func (s *Service) Registered(ctx context.Context) (bool, error) {
	return s.keys.DeviceRegistered(ctx)
}

// RegisterIfNeeded registers the device unless the flag is already set.
// It reports whether a registration request was sent. The flag is set only
// after a successful response.
func (s *Service) RegisterIfNeeded(ctx context.Context) (bool, error) {
	registered, err := s.keys.DeviceRegistered(ctx)
	if err != nil {
		return false, fmt.Errorf("read registration flag: %w", err)
	}
	if registered {
		return false, nil
	}

	if err := s.Register(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Register posts the device unconditionally and sets the flag on success.
func (s *Service) Register(ctx context.Context) error {
	info, err := s.Info(ctx)
	if err != nil {
		return err
	}

	if err := s.api.Post(ctx, "/devices", info, nil); err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	if err := s.keys.SetDeviceRegistered(ctx, true); err != nil {
		return fmt.Errorf("save registration flag: %w", err)
	}

	s.logger.InfoContext(ctx, "device registered", "device_id", info.DeviceID, "simulator", info.IsSimulator)
	return nil
}

// Reset clears the registration flag so the next RegisterIfNeeded sends
// again. The install id is kept.
func (s *Service) Reset(ctx context.Context) error {
	return s.keys.SetDeviceRegistered(ctx, false)
}

// IssuedAt extracts the creation time from a generated id.
func IssuedAt(id string) (time.Time, bool) {
	k, err := ksuid.Parse(id)
	if err != nil {
		return time.Time{}, false
	}
	return k.Time(), true
}
