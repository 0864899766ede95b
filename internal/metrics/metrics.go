package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for coffeeclub
type Metrics struct {
	// Loyalty API client metrics
	APIRequests    *prometheus.CounterVec
	APIDuration    *prometheus.HistogramVec
	TokenRefreshes *prometheus.CounterVec

	// Command metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Served HTTP metrics (the twin)
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffeeclub_api_requests_total",
				Help: "Total number of loyalty API requests by response status",
			},
			[]string{"method", "path", "status"},
		),
		APIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coffeeclub_api_request_duration_seconds",
				Help:    "Loyalty API request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "path"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffeeclub_token_refreshes_total",
				Help: "Total number of access token refresh exchanges",
			},
			[]string{"success"},
		),

		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffeeclub_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coffeeclub_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffeeclub_http_requests_total",
				Help: "Total number of served HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coffeeclub_http_request_duration_seconds",
				Help:    "Served HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffeeclub_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// ObserveRequest records one loyalty API exchange. A status of 0 means no
// response arrived and is recorded as "error".
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, path, code).Inc()
	m.APIDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveRefresh records one refresh exchange.
func (m *Metrics) ObserveRefresh(err error) {
	m.TokenRefreshes.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

// RecordCommand records a finished command. code is the structured error
// code, empty on success or when the error carries none.
func (m *Metrics) RecordCommand(command string, duration time.Duration, err error, code string) {
	m.CommandExecutions.WithLabelValues(command, strconv.FormatBool(err == nil)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if err != nil {
		if code == "" {
			code = "unknown"
		}
		m.Errors.WithLabelValues(code).Inc()
	}
}

// Middleware records served requests by chi route pattern, so path
// parameters do not create new series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			rctx = chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := rctx.RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
