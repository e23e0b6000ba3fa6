package resilience

import "sync"

// Registry hands out one breaker per upstream id. It is an injected service
// object rather than package state so tests can build isolated instances.
type Registry struct {
	mu       sync.RWMutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{
		cfg:      NormalizeCircuitBreakerConfig(cfg),
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (r *Registry) For(upstreamID string) *CircuitBreaker {
	r.mu.RLock()
	breaker, ok := r.breakers[upstreamID]
	r.mu.RUnlock()
	if ok {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if breaker, ok = r.breakers[upstreamID]; ok {
		return breaker
	}
	breaker = NewCircuitBreaker(r.cfg.FailureThreshold, r.cfg.OpenTimeout, r.cfg.HalfOpenMaxReq)
	r.breakers[upstreamID] = breaker
	return breaker
}

func (r *Registry) Enabled() bool {
	return r.cfg.Enabled
}

// Snapshots returns a per-upstream view of breaker state for health surfaces.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for upstreamID, breaker := range r.breakers {
		out[upstreamID] = breaker.Snapshot()
	}
	return out
}
