package loyaltytwin

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const customerContextKey contextKey = "twin_customer"

// RequestEntry is one served request as seen by the admin surface.
type RequestEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration_ms"`
	RequestID  string        `json:"request_id,omitempty"`
	Authorized bool          `json:"authorized"`
}

// RequestLog is a bounded, thread-safe log of recent requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []RequestEntry
	max     int
}

// NewRequestLog keeps the last max requests.
func NewRequestLog(max int) *RequestLog {
	return &RequestLog{max: max}
}

// Add appends an entry, dropping the oldest at capacity.
func (rl *RequestLog) Add(e RequestEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= rl.max {
		rl.entries = rl.entries[1:]
	}
	rl.entries = append(rl.entries, e)
}

// Entries returns a copy of the log, oldest first.
func (rl *RequestLog) Entries() []RequestEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return append([]RequestEntry{}, rl.entries...)
}

// Count returns how many logged requests hit method and path.
func (rl *RequestLog) Count(method, path string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	n := 0
	for _, e := range rl.entries {
		if e.Method == method && e.Path == path {
			n++
		}
	}
	return n
}

// Clear empties the log.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries = nil
}

// Fault makes the twin answer a path with a canned failure.
type Fault struct {
	StatusCode int           `json:"status_code"`
	Body       []string      `json:"body,omitempty"`
	Delay      time.Duration `json:"delay_ms,omitempty"`
	Rate       float64       `json:"rate"`  // 0 means always
	Times      int           `json:"times"` // 0 means until removed
}

// Faults maps request paths to injected faults.
type Faults struct {
	mu     sync.Mutex
	faults map[string]Fault
}

// NewFaults returns an empty registry.
func NewFaults() *Faults {
	return &Faults{faults: make(map[string]Fault)}
}

// Set injects f for path.
func (fr *Faults) Set(path string, f Fault) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if f.Rate <= 0 {
		f.Rate = 1
	}
	fr.faults[path] = f
}

// Remove drops the fault for path and reports whether one existed.
func (fr *Faults) Remove(path string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, ok := fr.faults[path]
	delete(fr.faults, path)
	return ok
}

// All returns a copy of the registry.
func (fr *Faults) All() map[string]Fault {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make(map[string]Fault, len(fr.faults))
	for k, v := range fr.faults {
		out[k] = v
	}
	return out
}

// Reset removes every fault.
func (fr *Faults) Reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]Fault)
}

// take returns the fault to apply for path, spending one use of a
// counted fault.
func (fr *Faults) take(path string) (Fault, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	f, ok := fr.faults[path]
	if !ok {
		return Fault{}, false
	}
	if f.Rate < 1 && rand.Float64() >= f.Rate {
		return Fault{}, false
	}
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(fr.faults, path)
		} else {
			fr.faults[path] = f
		}
	}
	return f, true
}

// Clock is the twin's notion of now, with an adjustable offset.
type Clock struct {
	mu     sync.RWMutex
	base   func() time.Time
	offset time.Duration
}

// NewClock wraps base. A nil base uses time.Now.
func NewClock(base func() time.Time) *Clock {
	if base == nil {
		base = time.Now
	}
	return &Clock{base: base}
}

// Now returns the simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base().Add(c.offset)
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Reset removes the offset.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
}

// Offset returns the current offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// logRequests records every request into the request log.
func (t *Twin) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		t.requests.Add(RequestEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: status,
			Duration:   time.Since(start),
			RequestID:  chimw.GetReqID(r.Context()),
			Authorized: ExtractBearer(r) != "",
		})
		t.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	})
}

// injectFaults applies registered faults. It is mounted on the API routes
// only so the admin surface stays reachable.
func (t *Twin) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := t.faults.take(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.StatusCode == 0 {
			next.ServeHTTP(w, r)
			return
		}
		body := f.Body
		if len(body) == 0 {
			body = []string{http.StatusText(f.StatusCode)}
		}
		writeJSON(w, f.StatusCode, body)
	})
}

// requireCustomer accepts only a valid, unrevoked access token and puts the
// customer id on the request context.
func (t *Twin) requireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearer(r)
		if token == "" {
			writeErrors(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := t.tokens.Validate(token, TokenAccess)
		if err != nil {
			writeErrors(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if claims.Generation != t.store.Generation(claims.Subject) {
			writeErrors(w, http.StatusUnauthorized, "Token revoked")
			return
		}
		if _, ok := t.store.Customer(claims.Subject); !ok {
			writeErrors(w, http.StatusUnauthorized, "Unknown customer")
			return
		}

		ctx := context.WithValue(r.Context(), customerContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractBearer returns the bearer token from the Authorization header.
func ExtractBearer(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CustomerID returns the authenticated customer id from ctx.
func CustomerID(ctx context.Context) string {
	id, _ := ctx.Value(customerContextKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrors writes the API's error shape: a JSON array of messages.
func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, messages)
}
