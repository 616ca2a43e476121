package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker is a backing dependency whose availability can be checked
type Checker interface {
	// Type returns the dependency kind, e.g. "postgres"
	Type() string

	// HealthCheck returns nil when the dependency answers
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a ping function to Checker
type CheckerFunc struct {
	Kind string
	Fn   func(ctx context.Context) error
}

func (c CheckerFunc) Type() string { return c.Kind }

func (c CheckerFunc) HealthCheck(ctx context.Context) error { return c.Fn(ctx) }

// Registry holds the dependencies reported by the readiness endpoint
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry creates an empty registry. Each check gets at most timeout;
// zero means 2 seconds.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Registry{
		checkers: make(map[string]Checker),
		timeout:  timeout,
	}
}

// Register adds a checker under name, replacing any previous one
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Get retrieves a checker by name
func (r *Registry) Get(name string) Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkers[name]
}

// List returns all registered names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll runs every checker concurrently
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for name, c := range r.checkers {
		checkers[name] = c
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(checkers))
	)
	for name, c := range checkers {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			err := c.HealthCheck(cctx)

			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()
	return results
}

// Healthy reports whether every result is nil
func Healthy(results map[string]error) bool {
	for _, err := range results {
		if err != nil {
			return false
		}
	}
	return true
}

// Unregister removes a checker from the registry
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}
