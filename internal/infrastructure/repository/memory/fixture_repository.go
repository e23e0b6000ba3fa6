package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sabiscore/predictor/internal/domain/fixture"
)

type FixtureRepository struct {
	mu    sync.RWMutex
	items map[int64]fixture.Fixture
}

func NewFixtureRepository() *FixtureRepository {
	return &FixtureRepository{items: make(map[int64]fixture.Fixture)}
}

func (r *FixtureRepository) Get(_ context.Context, id int64) (fixture.Fixture, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	return item, ok, nil
}

func (r *FixtureRepository) Upsert(_ context.Context, item fixture.Fixture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[item.ID] = item
	return nil
}

func (r *FixtureRepository) ListUpcomingByLeague(_ context.Context, leagueID int64, after time.Time, limit int) ([]fixture.Fixture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fixture.Fixture, 0, limit)
	for _, item := range r.items {
		if item.LeagueID != leagueID || !item.KickoffAt.After(after) {
			continue
		}
		if item.Status == fixture.StatusFinished {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
