package resilience

import "sync"

// SingleFlight collapses concurrent calls that share a key into a single
// execution. The zero value is ready to use.
type SingleFlight struct {
	mu     sync.Mutex
	active map[string]*inflight
}

type inflight struct {
	done  chan struct{}
	value any
	err   error
}

// Do runs fn at most once per key at a time. Callers arriving while an
// earlier call for the same key is still running block until it finishes
// and receive its result; the third return reports whether the result was
// shared rather than computed by this caller.
func (g *SingleFlight) Do(key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.active == nil {
		g.active = make(map[string]*inflight)
	}
	if leader, ok := g.active[key]; ok {
		g.mu.Unlock()
		<-leader.done
		return leader.value, leader.err, true
	}

	leader := &inflight{done: make(chan struct{})}
	g.active[key] = leader
	g.mu.Unlock()

	leader.value, leader.err = fn()
	close(leader.done)

	g.mu.Lock()
	delete(g.active, key)
	g.mu.Unlock()

	return leader.value, leader.err, false
}
