package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	tests := []struct {
		name   string
		metric interface{}
	}{
		{"APIRequests", m.APIRequests},
		{"APIDuration", m.APIDuration},
		{"TokenRefreshes", m.TokenRefreshes},
		{"CommandExecutions", m.CommandExecutions},
		{"CommandDuration", m.CommandDuration},
		{"HTTPRequests", m.HTTPRequests},
		{"HTTPDuration", m.HTTPDuration},
		{"Errors", m.Errors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("GET", "/account/customer", 200, 30*time.Millisecond)
	m.ObserveRequest("GET", "/account/customer", 200, 10*time.Millisecond)
	m.ObserveRequest("GET", "/account/customer", 401, 5*time.Millisecond)
	m.ObserveRequest("GET", "/health", 0, time.Second)

	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("GET", "/account/customer", "200")); got != 2 {
		t.Errorf("expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("GET", "/account/customer", "401")); got != 1 {
		t.Errorf("expected 1 unauthorized request, got %v", got)
	}
	if got := testutil.ToFloat64(m.APIRequests.WithLabelValues("GET", "/health", "error")); got != 1 {
		t.Errorf("expected 1 transport error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.APIDuration); got != 2 {
		t.Errorf("expected 2 latency series, got %d", got)
	}
}

func TestObserveRefresh(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRefresh(nil)
	m.ObserveRefresh(errors.New("rejected"))
	m.ObserveRefresh(errors.New("rejected"))

	if got := testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("true")); got != 1 {
		t.Errorf("expected 1 successful refresh, got %v", got)
	}
	if got := testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("false")); got != 2 {
		t.Errorf("expected 2 failed refreshes, got %v", got)
	}
}

func TestRecordCommand(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCommand("coffeeclub rewards", time.Second, nil, "")
	m.RecordCommand("coffeeclub rewards", time.Second, errors.New("x"), "AUTH-001")
	m.RecordCommand("coffeeclub qr", time.Second, errors.New("x"), "")

	if got := testutil.ToFloat64(m.CommandExecutions.WithLabelValues("coffeeclub rewards", "true")); got != 1 {
		t.Errorf("expected 1 successful execution, got %v", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("AUTH-001")); got != 1 {
		t.Errorf("expected 1 AUTH-001 error, got %v", got)
	}
	if got := testutil.ToFloat64(m.Errors.WithLabelValues("unknown")); got != 1 {
		t.Errorf("expected 1 uncoded error, got %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Get("/admin/customers/{phone}/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Healthy"))
	})
	h := m.Middleware(r)

	for _, path := range []string{"/admin/customers/5551234567/orders", "/admin/customers/5550000000/orders", "/health", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/admin/customers/{phone}/orders", "201")); got != 2 {
		t.Errorf("expected 2 requests on the pattern, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("expected 1 health request, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected 1 unmatched request, got %v", got)
	}
}
