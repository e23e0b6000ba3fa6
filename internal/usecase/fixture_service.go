package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

// FixtureService lists the upcoming window per league, preferring the
// local store and reaching through the provider chain when the store has
// nothing for the league yet.
type FixtureService struct {
	provider SportsDataProvider
	fixtures fixture.Repository
	logger   *logging.Logger
	now      func() time.Time
}

func NewFixtureService(provider SportsDataProvider, fixtures fixture.Repository, logger *logging.Logger) (*FixtureService, error) {
	if provider == nil {
		return nil, fmt.Errorf("sports data provider is required")
	}
	if fixtures == nil {
		return nil, fmt.Errorf("fixture repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &FixtureService{
		provider: provider,
		fixtures: fixtures,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *FixtureService) ListUpcoming(ctx context.Context, leagueID int64, limit int) ([]fixture.Fixture, error) {
	ctx, span := startUsecaseSpan(ctx, "FixtureService.ListUpcoming")
	defer span.End()

	if leagueID <= 0 {
		return nil, fmt.Errorf("league id must be > 0: %w", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > 50 {
		limit = 50
	}

	stored, err := s.fixtures.ListUpcomingByLeague(ctx, leagueID, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list upcoming fixtures: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	external, _, err := s.provider.FetchUpcomingFixtures(ctx, leagueID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch upcoming fixtures: %w", err)
	}

	out := make([]fixture.Fixture, 0, len(external))
	for _, item := range external {
		fx := fixtureFromExternal(item)
		if upsertErr := s.fixtures.Upsert(ctx, fx); upsertErr != nil {
			s.logger.WarnContext(ctx, "persist upcoming fixture failed", "fixture_id", fx.ID, "error", upsertErr)
		}
		out = append(out, fx)
	}
	return out, nil
}
