package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/prediction"
)

// PredictionRepository keeps one active prediction per fixture and checks
// the fixture reference on write, mirroring the relational constraint.
type PredictionRepository struct {
	mu       sync.RWMutex
	items    map[int64]prediction.Prediction
	fixtures fixture.Repository
}

func NewPredictionRepository(fixtures fixture.Repository) *PredictionRepository {
	return &PredictionRepository{
		items:    make(map[int64]prediction.Prediction),
		fixtures: fixtures,
	}
}

func (r *PredictionRepository) Get(_ context.Context, fixtureID int64) (prediction.Prediction, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[fixtureID]
	return item, ok, nil
}

func (r *PredictionRepository) Upsert(ctx context.Context, item prediction.Prediction) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if r.fixtures != nil {
		if _, found, err := r.fixtures.Get(ctx, item.FixtureID); err != nil {
			return fmt.Errorf("check fixture %d: %w", item.FixtureID, err)
		} else if !found {
			return fmt.Errorf("prediction references unknown fixture %d", item.FixtureID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[item.FixtureID] = item
	return nil
}

func (r *PredictionRepository) ListRecent(_ context.Context, limit int) ([]prediction.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]prediction.Prediction, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
