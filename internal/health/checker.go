// Package health checks the pieces the client depends on: the loyalty API,
// the credential store and the stored session.
//
// Checkers are small and independent. A Manager runs them in parallel, each
// under its own timeout, and folds the results into one overall status:
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewAPIChecker(api))
//	manager.AddChecker(health.NewStoreChecker("file", store))
//	manager.AddChecker(health.NewSessionChecker(keychain))
//
//	report := manager.Run(ctx)
//	fmt.Println(report.Status)
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency.
type Checker interface {
	// Name is short and lowercase, e.g. "api" or "store".
	Name() string

	// Check must honor ctx and return promptly.
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check.
type Status string

const (
	// StatusHealthy means fully operational.
	StatusHealthy Status = "healthy"

	// StatusDegraded means usable with reduced function, e.g. signed out.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means not working.
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Result is what a Checker reports.
type Result struct {
	Status  Status         `json:"status" yaml:"status"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Latency time.Duration  `json:"latency" yaml:"latency"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns the result for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns the result for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy creates a healthy result.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
