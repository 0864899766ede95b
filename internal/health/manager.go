package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 5 * time.Second

// Manager runs checks in parallel with a per-check timeout.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager creates a manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{
		checkers: make([]Checker, 0),
		timeout:  DefaultTimeout,
	}
}

// WithTimeout sets the per-check timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a checker.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// RemoveChecker removes a checker by name and reports whether it existed.
func (m *Manager) RemoveChecker(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, checker := range m.checkers {
		if checker.Name() == name {
			m.checkers = append(m.checkers[:i], m.checkers[i+1:]...)
			return true
		}
	}
	return false
}

// Check runs every checker and returns results by name. A checker that
// panics or returns nil is reported unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := runCheck(checkCtx, c)
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}

			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

func runCheck(ctx context.Context, c Checker) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Unhealthy(fmt.Sprintf("check panicked: %v", r))
		}
	}()
	result = c.Check(ctx)
	if result == nil {
		result = Unhealthy("check returned no result")
	}
	return result
}

// OverallStatus is the worst status among results. No results is healthy.
func (m *Manager) OverallStatus(results map[string]*Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		if result.Status.rank() > overall.rank() {
			overall = result.Status
		}
	}
	if overall.rank() > StatusDegraded.rank() {
		return StatusUnhealthy
	}
	return overall
}

// CheckNames returns the names of all registered checkers.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.checkers))
	for i, checker := range m.checkers {
		names[i] = checker.Name()
	}
	return names
}

// Count returns the number of registered checkers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}

// NamedResult pairs a result with its checker name.
type NamedResult struct {
	Name string `json:"name" yaml:"name"`
	*Result `yaml:",inline"`
}

// Report is a Check run in display order.
type Report struct {
	Status    Status        `json:"status" yaml:"status"`
	Checks    []NamedResult `json:"checks" yaml:"checks"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// Run checks everything and returns a report sorted by checker name.
func (m *Manager) Run(ctx context.Context) Report {
	results := m.Check(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{
		Status:    m.OverallStatus(results),
		Checks:    make([]NamedResult, 0, len(names)),
		Timestamp: time.Now(),
	}
	for _, name := range names {
		report.Checks = append(report.Checks, NamedResult{Name: name, Result: results[name]})
	}
	return report
}
