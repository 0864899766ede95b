// Package loyaltytwin is an in-memory stand-in for the loyalty backend.
//
// It speaks the same wire contract as the real API (see internal/apispec):
// phone registration with a one-time code, HS256 token pairs with rotating
// refresh tokens, the customer profile, order history, QR payloads, device
// registration and feedback. An /admin surface lets tests and demos seed
// orders, read issued codes, revoke tokens, move the clock and inject
// faults.
package loyaltytwin

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/coffeeclub/internal/log"
)

// Options configures a Twin. The zero value is usable.
type Options struct {
	// Issuer is the JWT "iss" claim.
	Issuer string
	// SigningKey signs tokens. A random key is generated when empty.
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// FixedCode makes every registration issue the same code.
	FixedCode string
	// Now is the base clock.
	Now func() time.Time
	// NodeID seeds customer id generation (0-1023).
	NodeID int64
	// RequestLogSize bounds the admin request log.
	RequestLogSize int
	Logger         *log.Logger
}

// Twin is the fake loyalty API.
type Twin struct {
	opts     Options
	store    *Store
	tokens   *TokenIssuer
	clock    *Clock
	faults   *Faults
	requests *RequestLog
	qrKey    [32]byte
	logger   *log.Logger
	router   chi.Router
}

// New builds a Twin and its router.
func New(opts Options) (*Twin, error) {
	if opts.Issuer == "" {
		opts.Issuer = "coffeeclub-twin"
	}
	if len(opts.SigningKey) == 0 {
		opts.SigningKey = make([]byte, 32)
		if _, err := rand.Read(opts.SigningKey); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	if opts.RequestLogSize <= 0 {
		opts.RequestLogSize = 1000
	}

	store, err := NewStore(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	t := &Twin{
		opts:     opts,
		store:    store,
		clock:    NewClock(opts.Now),
		faults:   NewFaults(),
		requests: NewRequestLog(opts.RequestLogSize),
		logger:   log.OrDefault(opts.Logger).With("component", "loyaltytwin"),
	}
	blake3.DeriveKey("coffeeclub loyalty twin qr v1", opts.SigningKey, t.qrKey[:])

	t.tokens = NewTokenIssuer(opts.SigningKey, opts.Issuer).WithClock(t.clock.Now)
	if opts.AccessTTL > 0 || opts.RefreshTTL > 0 {
		access, refresh := opts.AccessTTL, opts.RefreshTTL
		if access <= 0 {
			access = time.Hour
		}
		if refresh <= 0 {
			refresh = 7 * 24 * time.Hour
		}
		t.tokens.WithTokenDuration(access, refresh)
	}

	t.router = t.routes()
	return t, nil
}

func (t *Twin) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(t.logRequests)

	t.adminRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(t.injectFaults)

		r.Get("/", t.handleRoot)
		r.Get("/health", t.handleHealth)
		r.Get("/env", t.handleEnv)

		r.Post("/account/register", t.handleRegister)
		r.Post("/account/verify", t.handleVerify)
		r.Post("/account/refresh", t.handleRefresh)
		r.Post("/devices", t.handleDevice)

		r.Group(func(r chi.Router) {
			r.Use(t.requireCustomer)

			r.Get("/account/customer", t.handleGetCustomer)
			r.Put("/account/customer", t.handleUpdateCustomer)
			r.Get("/account/customer/orders", t.handleOrders)
			r.Get("/account/qr", t.handleQR)
			r.Post("/feedbacks", t.handleFeedback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrors(w, http.StatusNotFound, "Not found")
	})
	return r
}

// ServeHTTP makes the twin an http.Handler.
func (t *Twin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

// Store exposes the twin's state.
func (t *Twin) Store() *Store { return t.store }

// Clock exposes the twin's clock.
func (t *Twin) Clock() *Clock { return t.clock }

// Requests returns the request log.
func (t *Twin) Requests() *RequestLog { return t.requests }

// InjectFault makes path fail with f.
func (t *Twin) InjectFault(path string, f Fault) { t.faults.Set(path, f) }

// ClearFault removes the fault for path.
func (t *Twin) ClearFault(path string) { t.faults.Remove(path) }

// LastCode returns the pending verification code for phone.
func (t *Twin) LastCode(phone string) (string, bool) { return t.store.Code(phone) }

// AddOrder records a purchase for the customer registered with phone.
func (t *Twin) AddOrder(phone string, coffees int) (Order, error) {
	c, ok := t.store.CustomerByPhone(phone)
	if !ok {
		return Order{}, ErrCustomerNotFound
	}
	return t.store.AddOrder(c.ID, coffees, t.clock.Now())
}

// RevokeAccess makes every outstanding access token for phone fail with 401.
func (t *Twin) RevokeAccess(phone string) error {
	c, ok := t.store.CustomerByPhone(phone)
	if !ok {
		return ErrCustomerNotFound
	}
	t.store.RevokeAccess(c.ID)
	return nil
}

// Reset clears state, faults, the request log and the clock offset.
func (t *Twin) Reset() {
	t.store.Reset()
	t.faults.Reset()
	t.requests.Clear()
	t.clock.Reset()
}
