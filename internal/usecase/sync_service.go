package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/domain/team"
	idgen "github.com/sabiscore/predictor/internal/platform/id"
	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
)

type SyncConfig struct {
	Interval          time.Duration
	CycleTimeout      time.Duration
	GracePeriod       time.Duration
	FixturesPerLeague int
	BackfillThreshold int
	TrackedLeagues    []int64
}

func normalizeSyncConfig(cfg SyncConfig) SyncConfig {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if cfg.FixturesPerLeague <= 0 {
		cfg.FixturesPerLeague = 5
	}
	if cfg.BackfillThreshold <= 0 {
		cfg.BackfillThreshold = team.FormWindowSize
	}
	return cfg
}

// leagueOutcome is the fan-in result of syncing one league.
type leagueOutcome struct {
	leagueID       int64
	recordsWritten int
	usedFallback   bool
	staleFixtures  []int64
	err            error
}

// SyncService keeps the rolling fixture window and its predictions fresh.
// Leagues are synced concurrently and in isolation: one league failing
// leaves the others untouched and marks the cycle degraded, not failed.
type SyncService struct {
	cfg       SyncConfig
	provider  SportsDataProvider
	fixtures  fixture.Repository
	teams     team.Repository
	predictor *PredictionService
	events    ingestion.Repository
	ids       idgen.Generator
	logger    *logging.Logger
	now       func() time.Time
}

func NewSyncService(
	cfg SyncConfig,
	provider SportsDataProvider,
	fixtures fixture.Repository,
	teams team.Repository,
	predictor *PredictionService,
	events ingestion.Repository,
	ids idgen.Generator,
	logger *logging.Logger,
) (*SyncService, error) {
	if provider == nil {
		return nil, fmt.Errorf("sports data provider is required")
	}
	if fixtures == nil {
		return nil, fmt.Errorf("fixture repository is required")
	}
	if teams == nil {
		return nil, fmt.Errorf("team repository is required")
	}
	if predictor == nil {
		return nil, fmt.Errorf("prediction service is required")
	}
	if events == nil {
		return nil, fmt.Errorf("ingestion event repository is required")
	}
	if ids == nil {
		ids = idgen.NewRandomGenerator()
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &SyncService{
		cfg:       normalizeSyncConfig(cfg),
		provider:  provider,
		fixtures:  fixtures,
		teams:     teams,
		predictor: predictor,
		events:    events,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *SyncService) Interval() time.Duration {
	return s.cfg.Interval
}

// graceContext extends the cycle deadline by the configured grace period.
// The extension is relative to the deadline, not to the current time, so a
// slow league phase cannot stretch the cycle past deadline plus grace.
func (s *SyncService) graceContext(parent, cycleCtx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := cycleCtx.Deadline()
	if !ok {
		return context.WithTimeout(parent, s.cfg.CycleTimeout+s.cfg.GracePeriod)
	}
	return context.WithDeadline(parent, deadline.Add(s.cfg.GracePeriod))
}

// RunCycle executes one full synchronization pass and appends exactly one
// ingestion event describing it. The returned event mirrors what was
// persisted.
func (s *SyncService) RunCycle(ctx context.Context) (ingestion.Event, error) {
	ctx, span := startUsecaseSpan(ctx, "SyncService.RunCycle")
	defer span.End()

	start := s.now().UTC()
	cycleCtx, cancelCycle := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancelCycle()

	outcomes := s.syncLeagues(cycleCtx)

	var (
		recordsWritten int
		usedFallback   bool
		staleFixtures  []int64
		failedLeagues  []string
	)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failedLeagues = append(failedLeagues, strconv.FormatInt(outcome.leagueID, 10))
			s.logger.WarnContext(ctx, "league sync failed", "league_id", outcome.leagueID, "error", outcome.err)
			continue
		}
		recordsWritten += outcome.recordsWritten
		usedFallback = usedFallback || outcome.usedFallback
		staleFixtures = append(staleFixtures, outcome.staleFixtures...)
	}

	// Predictions already in flight get a bounded grace window past the
	// cycle deadline instead of being discarded mid-computation. The window
	// is anchored to the cycle deadline, so one cycle never runs longer
	// than CycleTimeout+GracePeriod in total.
	if len(staleFixtures) > 0 {
		graceCtx, cancelGrace := s.graceContext(ctx, cycleCtx)
		predicted, err := s.predictor.PredictBatch(graceCtx, staleFixtures)
		cancelGrace()
		if err != nil {
			s.logger.WarnContext(ctx, "batch prediction failed", "stale_count", len(staleFixtures), "error", err)
			failedLeagues = append(failedLeagues, "batch-predict")
		} else {
			for _, pred := range predicted {
				if pred != nil {
					recordsWritten++
				}
			}
		}
	}

	event := s.buildCycleEvent(start, recordsWritten, usedFallback, len(outcomes), failedLeagues, len(staleFixtures))
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "append cycle event failed", "error", err)
		return event, fmt.Errorf("append ingestion event: %w", err)
	}

	s.logger.InfoContext(ctx, "sync cycle finished",
		"status", event.Status,
		"duration_ms", event.DurationMs,
		"records_written", event.RecordsWritten,
		"used_fallback", event.UsedFallback,
	)
	return event, nil
}

// syncLeagues fans out one worker per tracked league, bounded at four
// concurrent leagues to keep upstream pressure reasonable.
func (s *SyncService) syncLeagues(ctx context.Context) []leagueOutcome {
	leagues := s.cfg.TrackedLeagues
	outcomes := make([]leagueOutcome, len(leagues))

	workers := pool.New().WithMaxGoroutines(4)
	for i, leagueID := range leagues {
		i, leagueID := i, leagueID
		workers.Go(func() {
			outcomes[i] = s.syncLeague(ctx, leagueID)
		})
	}
	workers.Wait()
	return outcomes
}

func (s *SyncService) syncLeague(ctx context.Context, leagueID int64) leagueOutcome {
	outcome := leagueOutcome{leagueID: leagueID}

	upcoming, meta, err := s.provider.FetchUpcomingFixtures(ctx, leagueID, s.cfg.FixturesPerLeague)
	if err != nil {
		outcome.err = fmt.Errorf("fetch upcoming fixtures: %w", err)
		return outcome
	}
	outcome.usedFallback = meta.UsedFallback

	now := s.now()
	for _, external := range upcoming {
		fx := fixtureFromExternal(external)
		if err := s.fixtures.Upsert(ctx, fx); err != nil {
			outcome.err = fmt.Errorf("upsert fixture %d: %w", fx.ID, err)
			return outcome
		}
		outcome.recordsWritten++

		for _, side := range []struct {
			teamID int64
			name   string
		}{
			{fx.HomeTeamID, fx.HomeTeam},
			{fx.AwayTeamID, fx.AwayTeam},
		} {
			written, fellBack, seedErr := s.seedTeam(ctx, side.teamID, side.name, leagueID)
			if seedErr != nil {
				s.logger.WarnContext(ctx, "seed team failed", "team_id", side.teamID, "error", seedErr)
				continue
			}
			outcome.recordsWritten += written
			outcome.usedFallback = outcome.usedFallback || fellBack
		}

		if s.needsPrediction(ctx, fx.ID, now) {
			outcome.staleFixtures = append(outcome.staleFixtures, fx.ID)
		}
	}

	sort.Slice(outcome.staleFixtures, func(i, j int) bool {
		return outcome.staleFixtures[i] < outcome.staleFixtures[j]
	})
	return outcome
}

// seedTeam ensures the team exists and its form window has enough samples,
// backfilling recent history when it does not.
func (s *SyncService) seedTeam(ctx context.Context, teamID int64, name string, leagueID int64) (int, bool, error) {
	stored, found, err := s.teams.Get(ctx, teamID)
	if err != nil {
		return 0, false, fmt.Errorf("load team %d: %w", teamID, err)
	}
	if !found {
		stored = team.Team{ID: teamID, LeagueID: leagueID, Name: name}
	}
	if name != "" {
		stored.Name = name
	}

	usedFallback := false
	if len(stored.RecentForm) < s.cfg.BackfillThreshold {
		results, meta, fetchErr := s.provider.FetchRecentResults(ctx, teamID, team.FormWindowSize)
		if fetchErr != nil {
			s.logger.WarnContext(ctx, "backfill recent results failed", "team_id", teamID, "error", fetchErr)
		} else {
			usedFallback = meta.UsedFallback
			// Oldest first, so PushResult leaves the newest result at the
			// head of the window.
			for i := len(results) - 1; i >= 0; i-- {
				r := results[i]
				before := len(stored.RecentForm)
				stored.PushResult(team.Result{
					FixtureID:    r.FixtureID,
					Opponent:     r.OpponentID,
					GoalsFor:     r.GoalsFor,
					GoalsAgainst: r.GoalsAgainst,
					Home:         r.Home,
					PlayedAt:     r.PlayedAt,
				})
				if len(stored.RecentForm) != before {
					applyVenueResult(&stored.Venue, r)
				}
			}
		}
	}

	if err := s.teams.Upsert(ctx, stored); err != nil {
		return 0, usedFallback, fmt.Errorf("upsert team %d: %w", teamID, err)
	}
	return 1, usedFallback, nil
}

func applyVenueResult(venue *team.VenueStats, r ExternalResult) {
	won := r.GoalsFor > r.GoalsAgainst
	if r.Home {
		venue.HomePlayed++
		if won {
			venue.HomeWins++
		}
	} else {
		venue.AwayPlayed++
		if won {
			venue.AwayWins++
		}
	}
}

func (s *SyncService) needsPrediction(ctx context.Context, fixtureID int64, now time.Time) bool {
	stored, found, err := s.predictor.predictions.Get(ctx, fixtureID)
	if err != nil {
		s.logger.WarnContext(ctx, "load prediction for staleness check failed", "fixture_id", fixtureID, "error", err)
		return true
	}
	return !found || stored.IsStale(now)
}

func (s *SyncService) buildCycleEvent(start time.Time, recordsWritten int, usedFallback bool, leagueCount int, failedLeagues []string, staleCount int) ingestion.Event {
	finished := s.now().UTC()

	status := ingestion.StatusCompleted
	switch {
	case leagueCount > 0 && len(failedLeagues) >= leagueCount:
		status = ingestion.StatusFailed
	case len(failedLeagues) > 0 || usedFallback:
		status = ingestion.StatusDegraded
	}

	eventID, err := s.ids.NewID()
	if err != nil {
		eventID = fmt.Sprintf("cycle-%d", finished.UnixNano())
	}

	event := ingestion.Event{
		ID:             eventID,
		Source:         "sync-scheduler",
		Scope:          "cycle",
		Status:         status,
		StartedAt:      start,
		DurationMs:     finished.Sub(start).Milliseconds(),
		RecordsWritten: recordsWritten,
		UsedFallback:   usedFallback,
		Metadata: map[string]string{
			"leagues":        strconv.Itoa(leagueCount),
			"stale_fixtures": strconv.Itoa(staleCount),
		},
	}
	if len(failedLeagues) > 0 {
		event.ErrorMessage = "failed: " + strings.Join(failedLeagues, ",")
	}
	return event
}
