package account

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/coffeeclub/internal/gateway"
	"github.com/felixgeelhaar/coffeeclub/internal/log"
	"github.com/felixgeelhaar/coffeeclub/internal/securestore"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newTestService(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Service, *[]recorded) {
	t.Helper()

	var calls []recorded
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	keychain := securestore.NewKeychain(securestore.NewMemoryStore())
	require.NoError(t, keychain.SaveTokens(context.Background(), securestore.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
	}))

	client, err := gateway.New(gateway.Config{
		BaseURL: server.URL,
		Tokens:  keychain,
		Logger:  log.Discard(),
	})
	require.NoError(t, err)

	return NewService(client), &calls
}

func TestRegister(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, svc.Register(context.Background(), "(555) 123-4567"))
	require.Len(t, *calls, 1)

	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/account/register", call.path)
	assert.JSONEq(t, `{"phone":"5551234567"}`, call.body)
}

func TestRegisterRejected(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`["Invalid phone number"]`))
	})

	err := svc.Register(context.Background(), "123")
	require.Error(t, err)

	apiErr, ok := gateway.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"Invalid phone number"}, apiErr.Errors)
}

func TestVerify(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"a1","refreshToken":"r1"}`))
	})

	pair, err := svc.Verify(context.Background(), "555-123-4567", " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, securestore.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, pair)
	assert.JSONEq(t, `{"phone":"5551234567","code":"123456"}`, (*calls)[0].body)
}

func TestVerifyEmptyTokens(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"","refreshToken":"r1"}`))
	})

	_, err := svc.Verify(context.Background(), "5551234567", "123456")
	assert.ErrorIs(t, err, ErrEmptyTokens)
}

func TestGetCustomerDetail(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "c-1",
			"phone": "5551234567",
			"firstName": "Ada",
			"lastName": null,
			"email": null,
			"birthDate": "1990-04-01",
			"currentCoffees": 23,
			"pendingRewards": 2,
			"totalCoffees": 43,
			"lastOrderDate": "2026-03-01T09:30:00"
		}`))
	})

	p, err := svc.GetCustomerDetail(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer access", (*calls)[0].auth)
	assert.Equal(t, "c-1", p.ID)
	assert.Equal(t, 23, p.CurrentCoffees)
	require.NotNil(t, p.FirstName)
	assert.Equal(t, "Ada", *p.FirstName)
	assert.Nil(t, p.LastName)
	assert.Nil(t, p.Email)
	require.NotNil(t, p.PendingRewards)
	assert.Equal(t, 2, *p.PendingRewards)
	require.NotNil(t, p.LastOrderDate)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), p.LastOrderDate.Time)
	assert.Equal(t, "Ada", p.DisplayName())
}

func TestGetCustomerOrders(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"o-2","orderDate":"2026-03-02T08:00:00.1234567","coffeeCount":2,"earnedReward":0},
			{"id":"o-1","orderDate":"2026-03-01T08:00:00Z","coffeeCount":1,"earnedReward":1}
		]`))
	})

	orders, err := svc.GetCustomerOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o-2", orders[0].ID)
	assert.Equal(t, 2, orders[0].CoffeeCount)
	assert.Equal(t, 2026, orders[0].OrderDate.Year())
	assert.Equal(t, 1, orders[1].EarnedReward)
}

func TestGetCustomerOrdersNull(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	orders, err := svc.GetCustomerOrders(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestUpdateCustomerSendsExplicitNulls(t *testing.T) {
	svc, calls := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	update := CustomerUpdate{FirstName: Optional("Ada"), Email: Optional("  ")}
	require.NoError(t, svc.UpdateCustomer(context.Background(), update))

	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/account/customer", call.path)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(call.body), &body))
	assert.Len(t, body, 4)
	assert.Equal(t, "Ada", body["firstName"])
	for _, key := range []string{"lastName", "birthDate", "email"} {
		v, present := body[key]
		assert.True(t, present, key)
		assert.Nil(t, v, key)
	}
}

func TestGenerateQR(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"customerId":"c-1","timestamp":"2026-03-01T10:00:00Z","hash":"abc"}`))
	})

	qr, err := svc.GenerateQR(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-1", qr.CustomerID)
	assert.Equal(t, "c-1|2026-03-01T10:00:00Z|abc", qr.Payload())
}

func TestServiceCancelledContext(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetCustomerDetail(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
