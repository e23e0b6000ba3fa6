package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sabiscore/predictor/internal/platform/resilience"
)

// Freshness classifies a cache read.
type Freshness int

const (
	Miss Freshness = iota
	Fresh
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// hardExpireFactor bounds memory: entries older than ttl*hardExpireFactor
// are evicted instead of served stale.
const hardExpireFactor = 4

type entry struct {
	payload   any
	fetchedAt time.Time
	ttl       time.Duration
}

// Store is a TTL map keyed by request signature. Reads past the entry TTL
// return the payload flagged Stale so callers can apply a
// stale-while-revalidate policy instead of losing the data outright.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	flight  resilience.SingleFlight
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore builds a store and starts its background sweep. sweepInterval
// controls how often hard-expired entries are removed; <= 0 disables the
// janitor (callers still get Miss for hard-expired keys on read).
func NewStore(sweepInterval time.Duration) *Store {
	s := &Store{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.janitor(sweepInterval)
	}
	return s
}

func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Store) Get(_ context.Context, key string) (any, Freshness) {
	if key == "" {
		return nil, Miss
	}

	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Miss
	}

	age := now.Sub(e.fetchedAt)
	if e.ttl > 0 && age >= e.ttl*hardExpireFactor {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, Miss
	}
	if e.ttl > 0 && age >= e.ttl {
		return e.payload, Stale
	}

	return e.payload, Fresh
}

func (s *Store) Put(_ context.Context, key string, payload any, ttl time.Duration) {
	if key == "" {
		return
	}

	s.mu.Lock()
	s.entries[key] = entry{
		payload:   payload,
		fetchedAt: s.now(),
		ttl:       ttl,
	}
	s.mu.Unlock()
}

func (s *Store) Invalidate(_ context.Context, key string) {
	if key == "" {
		return
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *Store) InvalidatePrefix(_ context.Context, prefix string) {
	if prefix == "" {
		return
	}

	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// GetOrLoad serves a Fresh entry or loads one via singleflight, so a burst
// of callers for the same key triggers a single load.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) (any, error)) (any, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if key == "" {
		return loader(ctx)
	}

	if payload, freshness := s.Get(ctx, key); freshness == Fresh {
		return payload, nil
	}

	value, err, _ := s.flight.Do(key, func() (any, error) {
		if payload, freshness := s.Get(ctx, key); freshness == Fresh {
			return payload, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		s.Put(ctx, key, loaded, ttl)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.now()

	s.mu.Lock()
	for key, e := range s.entries {
		if e.ttl > 0 && now.Sub(e.fetchedAt) >= e.ttl*hardExpireFactor {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}
