package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/coffeeclub/internal/account"
)

func profile(id string, coffees int) *account.Profile {
	return &account.Profile{ID: id, Phone: "5551234567", CurrentCoffees: coffees}
}

func TestReduceLogin(t *testing.T) {
	s := Reduce(Unauthenticated(), LoggedIn{Profile: profile("c-1", 3)})
	assert.True(t, s.Authenticated)
	require.NotNil(t, s.Profile)
	assert.Equal(t, 3, s.Profile.CurrentCoffees)
	assert.Empty(t, s.Orders)

	// A nil profile cannot authenticate.
	same := Reduce(Unauthenticated(), LoggedIn{})
	assert.False(t, same.Authenticated)
	assert.Nil(t, same.Profile)
}

func TestReduceLoginReplacesWholesale(t *testing.T) {
	first := "Ada"
	p := profile("c-1", 3)
	p.FirstName = &first

	s := Reduce(Unauthenticated(), LoggedIn{Profile: p})
	s = Reduce(s, OrdersLoaded{Orders: []account.Order{{ID: "o-1", CoffeeCount: 1}}})

	// Same customer: profile replaced, orders kept.
	s = Reduce(s, LoggedIn{Profile: profile("c-1", 5)})
	assert.Nil(t, s.Profile.FirstName)
	assert.Equal(t, 5, s.Profile.CurrentCoffees)
	assert.Len(t, s.Orders, 1)

	// Different customer: orders dropped.
	s = Reduce(s, LoggedIn{Profile: profile("c-2", 0)})
	assert.Equal(t, "c-2", s.Profile.ID)
	assert.Empty(t, s.Orders)
}

func TestReduceDoesNotAliasInput(t *testing.T) {
	p := profile("c-1", 12)
	s := Reduce(Unauthenticated(), LoggedIn{Profile: p})
	p.CurrentCoffees = 99
	assert.Equal(t, 12, s.Profile.CurrentCoffees)

	redeemed := Reduce(s, RedeemedFreeCoffee{})
	assert.Equal(t, 2, redeemed.Profile.CurrentCoffees)
	assert.Equal(t, 12, s.Profile.CurrentCoffees)
}

func TestReduceLogout(t *testing.T) {
	s := Reduce(Unauthenticated(), LoggedIn{Profile: profile("c-1", 3)})
	s = Reduce(s, OrdersLoaded{Orders: []account.Order{{ID: "o-1"}}})

	s = Reduce(s, LoggedOut{})
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.Profile)
	assert.Empty(t, s.Orders)

	// Logout is idempotent.
	assert.Equal(t, s, Reduce(s, LoggedOut{}))
}

func TestReduceRedeem(t *testing.T) {
	tests := []struct {
		name    string
		coffees int
		want    int
	}{
		{"below threshold is a no-op", 9, 9},
		{"exactly ten", 10, 0},
		{"only ten are spent", 23, 13},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Reduce(Unauthenticated(), LoggedIn{Profile: profile("c-1", tt.coffees)})
			s = Reduce(s, RedeemedFreeCoffee{})
			assert.Equal(t, tt.want, s.Profile.CurrentCoffees)
		})
	}

	t.Run("unauthenticated is a no-op", func(t *testing.T) {
		s := Reduce(Unauthenticated(), RedeemedFreeCoffee{})
		assert.Equal(t, Unauthenticated(), s)
	})

	t.Run("custom threshold", func(t *testing.T) {
		s := Reduce(Unauthenticated(), LoggedIn{Profile: profile("c-1", 7)})
		assert.Equal(t, 2, Reduce(s, RedeemedFreeCoffee{Threshold: 5}).Profile.CurrentCoffees)
		assert.Equal(t, 7, Reduce(s, RedeemedFreeCoffee{Threshold: 8}).Profile.CurrentCoffees)
	})
}

func TestSessionRedeemUsesConfiguredThreshold(t *testing.T) {
	s := New(WithThreshold(5))
	require.Equal(t, 5, s.Threshold())
	s.Dispatch(LoggedIn{Profile: profile("c-1", 5)})

	got := s.RedeemFreeCoffee()
	assert.Equal(t, 0, got.Profile.CurrentCoffees)

	// Below the configured threshold nothing is spent.
	s.Dispatch(OrderAdded{Order: account.Order{ID: "o-1", CoffeeCount: 4}})
	assert.Equal(t, 4, s.RedeemFreeCoffee().Profile.CurrentCoffees)

	assert.Equal(t, 10, New(WithThreshold(0)).Threshold())
}

func TestReduceOrders(t *testing.T) {
	assert.Empty(t, Reduce(Unauthenticated(), OrdersLoaded{Orders: []account.Order{{ID: "o-1"}}}).Orders)
	assert.Empty(t, Reduce(Unauthenticated(), OrderAdded{Order: account.Order{ID: "o-1"}}).Orders)

	s := Reduce(Unauthenticated(), LoggedIn{Profile: profile("c-1", 8)})
	s = Reduce(s, OrdersLoaded{Orders: []account.Order{{ID: "o-1", CoffeeCount: 1}}})
	s = Reduce(s, OrderAdded{Order: account.Order{ID: "o-2", CoffeeCount: 3}})

	require.Len(t, s.Orders, 2)
	assert.Equal(t, "o-2", s.Orders[0].ID)
	assert.Equal(t, 11, s.Profile.CurrentCoffees)
}

func TestSessionSnapshotIsACopy(t *testing.T) {
	sess := New()
	assert.False(t, sess.IsAuthenticated())
	assert.Nil(t, sess.Profile())

	sess.Login(profile("c-1", 4))
	assert.True(t, sess.IsAuthenticated())

	p := sess.Profile()
	p.CurrentCoffees = 100
	assert.Equal(t, 4, sess.Snapshot().Profile.CurrentCoffees)
}

func TestSessionTransitions(t *testing.T) {
	sess := New()
	sess.Login(profile("c-1", 14))
	sess.SetOrders([]account.Order{{ID: "o-1"}})
	sess.AddOrder(account.Order{ID: "o-2", CoffeeCount: 2})
	state := sess.RedeemFreeCoffee()

	assert.Equal(t, 6, state.Profile.CurrentCoffees)
	assert.Len(t, state.Orders, 2)

	state = sess.Logout()
	assert.False(t, state.Authenticated)
	assert.False(t, sess.IsAuthenticated())
}

func TestSessionSubscribe(t *testing.T) {
	sess := New()

	var seen []State
	unsubscribe := sess.Subscribe(func(s State) { seen = append(seen, s) })

	sess.Login(profile("c-1", 3))
	sess.RedeemFreeCoffee() // no-op, no notification
	sess.Logout()
	sess.Logout() // no-op, no notification

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Authenticated)
	assert.False(t, seen[1].Authenticated)

	unsubscribe()
	unsubscribe()
	sess.Login(profile("c-1", 3))
	assert.Len(t, seen, 2)
}

func TestSessionConcurrentAccess(t *testing.T) {
	sess := New()
	sess.Login(profile("c-1", 0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.AddOrder(account.Order{CoffeeCount: 1})
			_ = sess.Snapshot()
		}()
	}
	wg.Wait()

	state := sess.Snapshot()
	assert.Equal(t, 50, state.Profile.CurrentCoffees)
	assert.Len(t, state.Orders, 50)
}
