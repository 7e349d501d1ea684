package resilience

import (
	"slices"
	"sync"
)

// Registry holds the name-keyed runtime state shared by all executions that
// use the same circuit breaker, bulkhead or rate limiter name.
//
// An Engine owns one Registry. Engines that must observe the same state are
// built with WithRegistry. A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*circuitBreaker
	bulkheads map[string]*bulkhead
	limiters  map[string]*rateLimiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers:  make(map[string]*circuitBreaker),
		bulkheads: make(map[string]*bulkhead),
		limiters:  make(map[string]*rateLimiter),
	}
}

func getOrCreate[V any](mu *sync.RWMutex, m map[string]V, name string, create func() V) (V, bool) {
	mu.RLock()
	v, ok := m[name]
	mu.RUnlock()
	if ok {
		return v, false
	}

	mu.Lock()
	defer mu.Unlock()

	// Check again in case it was created while waiting for the lock.
	if v, ok := m[name]; ok {
		return v, false
	}
	v = create()
	m[name] = v
	return v, true
}

func lookup[V any](mu *sync.RWMutex, m map[string]V, name string) (V, bool) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[name]
	return v, ok
}

func (r *Registry) breaker(p CircuitBreakerPolicy) *circuitBreaker {
	cb, created := getOrCreate(&r.mu, r.breakers, p.Name, func() *circuitBreaker {
		return newCircuitBreaker(p, true)
	})
	if !created {
		cb.configure(p)
	}
	return cb
}

// unconfiguredBreaker returns the breaker for name, creating it with the
// default policy if no execution has registered one yet.
func (r *Registry) unconfiguredBreaker(name string) *circuitBreaker {
	cb, _ := getOrCreate(&r.mu, r.breakers, name, func() *circuitBreaker {
		return newCircuitBreaker(defaultCircuitBreakerPolicy(name), false)
	})
	return cb
}

func (r *Registry) lookupBreaker(name string) (*circuitBreaker, bool) {
	return lookup(&r.mu, r.breakers, name)
}

func (r *Registry) bulkhead(p BulkheadPolicy) *bulkhead {
	b, _ := getOrCreate(&r.mu, r.bulkheads, p.Name, func() *bulkhead {
		return newBulkhead(p)
	})
	return b
}

func (r *Registry) lookupBulkhead(name string) (*bulkhead, bool) {
	return lookup(&r.mu, r.bulkheads, name)
}

func (r *Registry) limiter(p RateLimitPolicy) *rateLimiter {
	rl, _ := getOrCreate(&r.mu, r.limiters, p.Name, func() *rateLimiter {
		return newRateLimiter(p)
	})
	return rl
}

func (r *Registry) lookupLimiter(name string) (*rateLimiter, bool) {
	return lookup(&r.mu, r.limiters, name)
}

// removeBreaker drops the breaker state for name.
func (r *Registry) removeBreaker(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.breakers[name]
	delete(r.breakers, name)
	return ok
}

// CircuitBreakerNames returns the registered breaker names in sorted order.
func (r *Registry) CircuitBreakerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.breakers)
}

// BulkheadNames returns the registered bulkhead names in sorted order.
func (r *Registry) BulkheadNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.bulkheads)
}

// RateLimiterNames returns the registered rate limiter names in sorted order.
func (r *Registry) RateLimiterNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.limiters)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
