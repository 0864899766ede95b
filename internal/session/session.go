package session

import (
	"sync"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/reward"
)

// Session is the process-wide, thread-safe session holder.
type Session struct {
	mu          sync.RWMutex
	state       State
	subscribers map[int]func(State)
	nextID      int
	threshold   int
}

// Option configures a Session.
type Option func(*Session)

// WithThreshold sets the coffees spent per free coffee. Values <= 0 keep
// reward.DefaultThreshold.
func WithThreshold(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// New returns an unauthenticated session.
func New(opts ...Option) *Session {
	s := &Session{
		state:       Unauthenticated(),
		subscribers: make(map[int]func(State)),
		threshold:   reward.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the coffees spent per free coffee.
func (s *Session) Threshold() int {
	return s.threshold
}

// Dispatch applies ev and notifies subscribers when the state changed.
// Subscribers run after the lock is released, in no particular order.
func (s *Session) Dispatch(ev Event) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, ev)
	s.state = next
	var subs []func(State)
	if !sameState(prev, next) {
		subs = make([]func(State), 0, len(s.subscribers))
		for _, fn := range s.subscribers {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.Clone())
	}
	return next.Clone()
}

// Login transitions to authenticated with profile.
func (s *Session) Login(profile *account.Profile) State {
	return s.Dispatch(LoggedIn{Profile: profile})
}

// Logout transitions to unauthenticated. Clearing stored tokens is the
// caller's job.
func (s *Session) Logout() State {
	return s.Dispatch(LoggedOut{})
}

// RedeemFreeCoffee spends one threshold of coffees when at least that many
// are available.
func (s *Session) RedeemFreeCoffee() State {
	return s.Dispatch(RedeemedFreeCoffee{Threshold: s.threshold})
}

// SetOrders replaces the order list.
func (s *Session) SetOrders(orders []account.Order) State {
	return s.Dispatch(OrdersLoaded{Orders: orders})
}

// AddOrder prepends order and adds its coffees to the count.
func (s *Session) AddOrder(order account.Order) State {
	return s.Dispatch(OrderAdded{Order: order})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// IsAuthenticated reports whether a customer is signed in.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated
}

// Profile returns a copy of the current profile, or nil.
func (s *Session) Profile() *account.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Profile.Clone()
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// sameState is a cheap identity check: Reduce returns its input unchanged
// for no-op events.
func sameState(a, b State) bool {
	if a.Authenticated != b.Authenticated || a.Profile != b.Profile || len(a.Orders) != len(b.Orders) {
		return false
	}
	return len(a.Orders) == 0 || &a.Orders[0] == &b.Orders[0]
}
