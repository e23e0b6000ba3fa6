package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/platform/cache"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

func testFixture(id int64) fixture.Fixture {
	return fixture.Fixture{
		ID:         id,
		LeagueID:   39,
		HomeTeamID: 101,
		AwayTeamID: 202,
		HomeTeam:   "Rovers",
		AwayTeam:   "City",
		KickoffAt:  time.Date(2026, time.September, 5, 15, 0, 0, 0, time.UTC),
		Status:     fixture.StatusScheduled,
	}
}

func newFeatureHarness(t *testing.T) (*FeatureService, *stubProvider, *stubFixtureRepo, *stubTeamRepo) {
	t.Helper()

	provider := newStubProvider()
	fixtures := newStubFixtureRepo()
	teams := newStubTeamRepo()

	service, err := NewFeatureService(DefaultFeatureConfig(), provider, fixtures, teams, logging.NewJSON(logging.LevelError))
	if err != nil {
		t.Fatalf("NewFeatureService error: %v", err)
	}
	return service, provider, fixtures, teams
}

func TestFeatureService_ExtractAlwaysProducesUsableSet(t *testing.T) {
	t.Parallel()

	service, provider, fixtures, _ := newFeatureHarness(t)
	provider.failResults = true
	if err := fixtures.Upsert(context.Background(), testFixture(500)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}

	set, usedFallback, err := service.Extract(context.Background(), 500)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if usedFallback {
		t.Fatalf("no provider meta flagged fallback, usedFallback should be false")
	}
	if set.Home.FormScore != 50 || set.Away.FormScore != 50 {
		t.Fatalf("expected neutral form without samples, got %.1f / %.1f", set.Home.FormScore, set.Away.FormScore)
	}
	if set.Home.ExpectedGoals <= 0 || set.Away.ExpectedGoals <= 0 {
		t.Fatalf("expected neutral positive xG, got %+v", set)
	}
	if set.DataQuality >= 1 {
		t.Fatalf("missing signals must reduce data quality, got %.2f", set.DataQuality)
	}
	if set.DataQuality <= 0 {
		t.Fatalf("data quality must stay positive, got %.2f", set.DataQuality)
	}
}

func TestFeatureService_RecentResultsWeighMore(t *testing.T) {
	t.Parallel()

	service, provider, fixtures, _ := newFeatureHarness(t)
	if err := fixtures.Upsert(context.Background(), testFixture(501)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}

	// Both teams have 4 wins and 4 losses; home won the recent half.
	provider.resultsByTeam[101] = resultsRun(101, "WWWWLLLL")
	provider.resultsByTeam[202] = resultsRun(202, "LLLLWWWW")

	set, _, err := service.Extract(context.Background(), 501)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if set.Home.FormScore <= set.Away.FormScore {
		t.Fatalf("linear decay should favor recent wins: home %.1f vs away %.1f", set.Home.FormScore, set.Away.FormScore)
	}
	if set.Home.Momentum <= set.Away.Momentum {
		t.Fatalf("momentum should favor the improving side: %.2f vs %.2f", set.Home.Momentum, set.Away.Momentum)
	}
}

func TestFeatureService_InjuryImpactIsCapped(t *testing.T) {
	t.Parallel()

	service, provider, fixtures, _ := newFeatureHarness(t)
	if err := fixtures.Upsert(context.Background(), testFixture(502)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}

	injuries := make([]ExternalInjury, 0, 12)
	for i := 0; i < 12; i++ {
		injuries = append(injuries, ExternalInjury{PlayerName: "Player", Position: "FW", Severity: "out"})
	}
	provider.injuriesByTeam[101] = injuries

	set, _, err := service.Extract(context.Background(), 502)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if set.Home.InjuryImpact != -0.30 {
		t.Fatalf("injury impact must cap at -0.30, got %.2f", set.Home.InjuryImpact)
	}
}

func TestFeatureService_MarketSignalRemovesOverround(t *testing.T) {
	t.Parallel()

	service, provider, fixtures, _ := newFeatureHarness(t)
	if err := fixtures.Upsert(context.Background(), testFixture(503)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	provider.oddsByFixture[503] = &ExternalOdds{Home: 2.0, Draw: 4.0, Away: 4.0}

	set, _, err := service.Extract(context.Background(), 503)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if set.MarketSignal == nil {
		t.Fatalf("expected market signal from priced odds")
	}
	if got := *set.MarketSignal; got < 0.49 || got > 0.51 {
		t.Fatalf("implied home probability should be ~0.50, got %.3f", got)
	}
}

func TestFeatureService_ExtractMemoizesFeatureSets(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	fixtures := newStubFixtureRepo()
	teams := newStubTeamRepo()

	cfg := DefaultFeatureConfig()
	cfg.Cache = cache.NewStore(0)
	t.Cleanup(cfg.Cache.Close)

	service, err := NewFeatureService(cfg, provider, fixtures, teams, logging.NewJSON(logging.LevelError))
	if err != nil {
		t.Fatalf("NewFeatureService error: %v", err)
	}

	if err := fixtures.Upsert(context.Background(), testFixture(604)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	provider.resultsByTeam[101] = resultsRun(101, "WWWDL")

	first, _, err := service.Extract(context.Background(), 604)
	if err != nil {
		t.Fatalf("first Extract error: %v", err)
	}
	callsAfterFirst := provider.recentResultCalls
	if callsAfterFirst == 0 {
		t.Fatalf("expected the first extraction to hit the provider")
	}

	second, _, err := service.Extract(context.Background(), 604)
	if err != nil {
		t.Fatalf("second Extract error: %v", err)
	}
	if provider.recentResultCalls != callsAfterFirst {
		t.Fatalf("memoized extraction re-hit the provider: %d calls, want %d", provider.recentResultCalls, callsAfterFirst)
	}
	if second.FixtureID != first.FixtureID || second.DataQuality != first.DataQuality {
		t.Fatalf("memoized FeatureSet diverged: got quality %.3f, want %.3f", second.DataQuality, first.DataQuality)
	}
}

func TestFeatureService_SyntheticFixtureNeverNotFound(t *testing.T) {
	t.Parallel()

	t.Run("unseeded synthetic id resolves through the provider", func(t *testing.T) {
		t.Parallel()

		service, _, _, _ := newFeatureHarness(t)
		syntheticID := fixture.SyntheticIDFloor + 42

		set, _, err := service.Extract(context.Background(), syntheticID)
		if err != nil {
			t.Fatalf("Extract error for synthetic fixture: %v", err)
		}
		if set.FixtureID != syntheticID {
			t.Fatalf("unexpected fixture id %d", set.FixtureID)
		}
	})

	t.Run("provider reporting a synthetic id missing is not surfaced as not-found", func(t *testing.T) {
		t.Parallel()

		service, provider, _, _ := newFeatureHarness(t)
		syntheticID := fixture.SyntheticIDFloor + 77
		provider.failFixtures[syntheticID] = fmt.Errorf("fixture %d: %w", syntheticID, ErrNotFound)

		_, _, err := service.Extract(context.Background(), syntheticID)
		if err == nil {
			t.Fatalf("expected an error from a broken provider")
		}
		if stderrors.Is(err, ErrNotFound) {
			t.Fatalf("synthetic id surfaced ErrNotFound: %v", err)
		}
		if !stderrors.Is(err, ErrDependencyUnavailable) {
			t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
		}
	})

	t.Run("unknown real id surfaces not-found instead of fabricated data", func(t *testing.T) {
		t.Parallel()

		service, _, _, _ := newFeatureHarness(t)

		_, _, err := service.Extract(context.Background(), 55555)
		if !stderrors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for an unknown real id, got %v", err)
		}
	})
}

func TestFeatureService_WeatherPenaltyForHarshConditions(t *testing.T) {
	t.Parallel()

	service, provider, fixtures, _ := newFeatureHarness(t)
	if err := fixtures.Upsert(context.Background(), testFixture(504)); err != nil {
		t.Fatalf("seed fixture: %v", err)
	}
	provider.weatherByFixture[504] = &ExternalWeather{TempCelsius: 4, WindKph: 45, Precipitation: 6}

	set, _, err := service.Extract(context.Background(), 504)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if set.WeatherPenalty == nil {
		t.Fatalf("expected weather penalty")
	}
	if *set.WeatherPenalty <= 0 || *set.WeatherPenalty > 0.25 {
		t.Fatalf("weather penalty out of range: %.3f", *set.WeatherPenalty)
	}
}
