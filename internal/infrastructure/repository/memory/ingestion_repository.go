package memory

import (
	"context"
	"sync"

	"github.com/sabiscore/predictor/internal/domain/ingestion"
)

// maxRetainedEvents bounds the in-memory audit log.
const maxRetainedEvents = 1000

type IngestionEventRepository struct {
	mu     sync.RWMutex
	events []ingestion.Event
}

func NewIngestionEventRepository() *IngestionEventRepository {
	return &IngestionEventRepository{}
}

func (r *IngestionEventRepository) Append(_ context.Context, event ingestion.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	if len(r.events) > maxRetainedEvents {
		r.events = r.events[len(r.events)-maxRetainedEvents:]
	}
	return nil
}

// ListRecent returns events newest first.
func (r *IngestionEventRepository) ListRecent(_ context.Context, limit int) ([]ingestion.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]ingestion.Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}
