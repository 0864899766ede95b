// Package auth orchestrates phone sign-in: request a one-time code, verify
// it, persist the token pair, load the profile and move the session to
// authenticated. The steps run in that order and nowhere else.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
	"github.com/felixgeelhaar/coffeeclub/internal/session"
)

var (
	// ErrInvalidPhone is returned when a phone number does not normalize to 10-15 digits.
	ErrInvalidPhone = errors.New("phone number must have 10 to 15 digits")
	// ErrInvalidCode is returned when a verification code is not exactly six digits.
	ErrInvalidCode = errors.New("verification code must be 6 digits")
	// ErrInFlight is returned when RequestCode or Verify is called while another one is running.
	ErrInFlight = errors.New("another sign-in request is already running")
	// ErrNotAuthenticated is returned by operations that need a signed-in session.
	ErrNotAuthenticated = errors.New("not signed in")
)

// Accounts is the account API the flow drives. *account.Service implements it.
type Accounts interface {
	Register(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string) (securestore.TokenPair, error)
	GetCustomerDetail(ctx context.Context) (*account.Profile, error)
	GetCustomerOrders(ctx context.Context) ([]account.Order, error)
	UpdateCustomer(ctx context.Context, update account.CustomerUpdate) error
}

// Tokens persists credentials. *securestore.Keychain implements it.
type Tokens interface {
	SaveTokens(ctx context.Context, pair securestore.TokenPair) error
	AccessToken(ctx context.Context) (string, bool, error)
	ClearTokens(ctx context.Context) error
}

// DeviceRegistrar registers the installation once. *device.Service
// implements it.
type DeviceRegistrar interface {
	RegisterIfNeeded(ctx context.Context) (bool, error)
}

// Options configures a Flow.
type Options struct {
	Logger *log.Logger
	// Devices, when set, is asked to register the installation after a
	// successful sign-in. Failures are logged and retried next time.
	Devices DeviceRegistrar
}

// Flow is the sign-in orchestrator.
type Flow struct {
	accounts Accounts
	tokens   Tokens
	session  *session.Session
	devices  DeviceRegistrar
	logger   *log.Logger

	busy atomic.Bool
}

// NewFlow wires a Flow.
func NewFlow(accounts Accounts, tokens Tokens, sess *session.Session, opts Options) *Flow {
	return &Flow{
		accounts: accounts,
		tokens:   tokens,
		session:  sess,
		devices:  opts.Devices,
		logger:   log.OrDefault(opts.Logger).With("component", "auth"),
	}
}

// Session returns the session the flow drives.
func (f *Flow) Session() *session.Session {
	return f.session
}

// NormalizePhone strips formatting and checks the digit count.
func NormalizePhone(phone string) (string, error) {
	digits := account.DigitsOnly(phone)
	if len(digits) < 10 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// ValidateCode trims code and checks it is exactly six digits.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 || account.DigitsOnly(code) != code {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Busy reports whether a RequestCode or Verify call is running.
func (f *Flow) Busy() bool {
	return f.busy.Load()
}

func (f *Flow) acquire() error {
	if !f.busy.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	return nil
}

func (f *Flow) release() {
	f.busy.Store(false)
}

// RequestCode asks the backend to send a code to phone and returns the
// normalized number.
func (f *Flow) RequestCode(ctx context.Context, phone string) (string, error) {
	digits, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	if err := f.acquire(); err != nil {
		return "", err
	}
	defer f.release()

	if err := f.accounts.Register(ctx, digits); err != nil {
		return "", err
	}
	f.logger.InfoContext(ctx, "verification code requested")
	return digits, nil
}

// Verify completes sign-in. Tokens are persisted before the profile is
// fetched because the profile call authenticates with them. If the profile
// fetch fails the tokens stay stored and Restore can finish later.
// An orders failure is logged only; the orders view retries on its own.
func (f *Flow) Verify(ctx context.Context, phone, code string) (session.State, error) {
	digits, err := NormalizePhone(phone)
	if err != nil {
		return session.State{}, err
	}
	code, err = ValidateCode(code)
	if err != nil {
		return session.State{}, err
	}
	if err := f.acquire(); err != nil {
		return session.State{}, err
	}
	defer f.release()

	pair, err := f.accounts.Verify(ctx, digits, code)
	if err != nil {
		return session.State{}, err
	}
	if err := f.tokens.SaveTokens(ctx, pair); err != nil {
		return session.State{}, fmt.Errorf("persist tokens: %w", err)
	}

	state, err := f.load(ctx)
	if err != nil {
		return session.State{}, err
	}

	f.registerDevice(ctx)
	f.logger.InfoContext(ctx, "signed in", "customer_id", state.Profile.ID)
	return state, nil
}

// load fetches the profile and orders and logs the session in.
func (f *Flow) load(ctx context.Context) (session.State, error) {
	profile, err := f.accounts.GetCustomerDetail(ctx)
	if err != nil {
		return session.State{}, err
	}
	state := f.session.Login(profile)

	orders, err := f.accounts.GetCustomerOrders(ctx)
	if err != nil {
		f.logger.WarnContext(ctx, "order history unavailable", "error", err.Error())
		return state, nil
	}
	return f.session.SetOrders(orders), nil
}

func (f *Flow) registerDevice(ctx context.Context) {
	if f.devices == nil {
		return
	}
	if _, err := f.devices.RegisterIfNeeded(ctx); err != nil {
		f.logger.WarnContext(ctx, "device registration failed", "error", err.Error())
	}
}

// Restore signs in from stored tokens. It reports false when there is
// nothing to restore or the stored tokens were rejected, in which case
// they are cleared. Network and storage failures are returned and the
// tokens are kept.
func (f *Flow) Restore(ctx context.Context) (bool, error) {
	token, ok, err := f.tokens.AccessToken(ctx)
	if err != nil {
		return false, err
	}
	if !ok || token == "" {
		return false, nil
	}

	if _, err := f.load(ctx); err != nil {
		if apiErr, ok := gateway.AsAPIError(err); ok && apiErr.IsAuth() {
			f.logger.InfoContext(ctx, "stored credentials rejected, clearing")
			if cerr := f.tokens.ClearTokens(ctx); cerr != nil {
				return false, cerr
			}
			f.session.Logout()
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Refresh reloads the profile into an authenticated session.
func (f *Flow) Refresh(ctx context.Context) (*account.Profile, error) {
	if !f.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	profile, err := f.accounts.GetCustomerDetail(ctx)
	if err != nil {
		return nil, err
	}
	f.session.Login(profile)
	return f.session.Profile(), nil
}

// RefreshOrders reloads the order history.
func (f *Flow) RefreshOrders(ctx context.Context) ([]account.Order, error) {
	if !f.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	orders, err := f.accounts.GetCustomerOrders(ctx)
	if err != nil {
		return nil, err
	}
	return f.session.SetOrders(orders).Orders, nil
}

// UpdateProfile sends the update and then refetches the profile. The local
// copy is never patched by hand.
func (f *Flow) UpdateProfile(ctx context.Context, update account.CustomerUpdate) (*account.Profile, error) {
	if !f.session.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if err := f.accounts.UpdateCustomer(ctx, update); err != nil {
		return nil, err
	}
	return f.Refresh(ctx)
}

// Logout moves the session to unauthenticated and then removes the stored
// tokens. The session is logged out even if clearing fails.
func (f *Flow) Logout(ctx context.Context) error {
	f.session.Logout()
	if err := f.tokens.ClearTokens(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	f.logger.InfoContext(ctx, "signed out")
	return nil
}
