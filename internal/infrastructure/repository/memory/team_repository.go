package memory

import (
	"context"
	"sync"

	"github.com/sabiscore/predictor/internal/domain/team"
)

type TeamRepository struct {
	mu    sync.RWMutex
	items map[int64]team.Team
}

func NewTeamRepository() *TeamRepository {
	return &TeamRepository{items: make(map[int64]team.Team)}
}

func (r *TeamRepository) Get(_ context.Context, id int64) (team.Team, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return team.Team{}, false, nil
	}
	// Copy the window so callers cannot mutate the stored slice.
	item.RecentForm = append([]team.Result(nil), item.RecentForm...)
	return item, true, nil
}

func (r *TeamRepository) Upsert(_ context.Context, item team.Team) error {
	if err := item.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	item.RecentForm = append([]team.Result(nil), item.RecentForm...)
	r.items[item.ID] = item
	return nil
}
