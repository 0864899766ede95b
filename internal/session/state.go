// Package session holds the client's authentication state.
//
// Reduce is a pure transition function; Session wraps it with a mutex and
// change notifications so any number of views can share one instance.
package session

import (
	"github.com/felixgeelhaar/coffeeclub/internal/account"
	"github.com/felixgeelhaar/coffeeclub/internal/reward"
)

// State is a snapshot of the session. Profile is non-nil exactly when
// Authenticated is true, and Orders is empty otherwise.
type State struct {
	Authenticated bool
	Profile       *account.Profile
	Orders        []account.Order
}

// Unauthenticated is the initial state.
func Unauthenticated() State {
	return State{}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := State{Authenticated: s.Authenticated, Profile: s.Profile.Clone()}
	if len(s.Orders) > 0 {
		c.Orders = append([]account.Order(nil), s.Orders...)
	}
	return c
}

// Event is a session transition.
type Event interface {
	event()
}

// LoggedIn replaces the profile wholesale.
type LoggedIn struct {
	Profile *account.Profile
}

// LoggedOut returns to the unauthenticated state.
type LoggedOut struct{}

// RedeemedFreeCoffee spends one reward threshold worth of coffees. A zero
// Threshold means reward.DefaultThreshold.
type RedeemedFreeCoffee struct {
	Threshold int
}

// OrdersLoaded replaces the order list.
type OrdersLoaded struct {
	Orders []account.Order
}

// OrderAdded records a purchase optimistically.
type OrderAdded struct {
	Order account.Order
}

func (LoggedIn) event()           {}
func (LoggedOut) event()          {}
func (RedeemedFreeCoffee) event() {}
func (OrdersLoaded) event()       {}
func (OrderAdded) event()         {}

// Reduce applies ev to s and returns the new state. It never mutates s.
// Events that do not apply to the current state return it unchanged.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case LoggedIn:
		if e.Profile == nil {
			return s
		}
		next := State{Authenticated: true, Profile: e.Profile.Clone()}
		if next.Profile.CurrentCoffees < 0 {
			next.Profile.CurrentCoffees = 0
		}
		// Orders only survive a re-login by the same customer.
		if s.Authenticated && s.Profile != nil && s.Profile.ID == e.Profile.ID {
			next.Orders = append([]account.Order(nil), s.Orders...)
		}
		return next

	case LoggedOut:
		return Unauthenticated()

	case RedeemedFreeCoffee:
		if !s.Authenticated || s.Profile == nil {
			return s
		}
		view := reward.Derive(s.Profile.CurrentCoffees, e.Threshold)
		if !view.CanRedeem() {
			return s
		}
		next := s.Clone()
		next.Profile.CurrentCoffees -= view.Threshold
		return next

	case OrdersLoaded:
		if !s.Authenticated {
			return s
		}
		next := s.Clone()
		next.Orders = append([]account.Order(nil), e.Orders...)
		return next

	case OrderAdded:
		if !s.Authenticated || s.Profile == nil {
			return s
		}
		next := s.Clone()
		next.Orders = append([]account.Order{e.Order}, next.Orders...)
		if e.Order.CoffeeCount > 0 {
			next.Profile.CurrentCoffees += e.Order.CoffeeCount
		}
		return next
	}
	return s
}
