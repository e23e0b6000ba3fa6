package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

type syncHarness struct {
	service     *SyncService
	provider    *stubProvider
	fixtures    *stubFixtureRepo
	teams       *stubTeamRepo
	predictions *stubPredictionRepo
	events      *stubEventRepo
}

func newSyncHarness(t *testing.T, cfg SyncConfig) *syncHarness {
	t.Helper()

	provider := newStubProvider()
	fixtures := newStubFixtureRepo()
	teams := newStubTeamRepo()
	predictions := newStubPredictionRepo()
	events := &stubEventRepo{}
	logger := logging.NewNop()

	featureService, err := NewFeatureService(DefaultFeatureConfig(), provider, fixtures, teams, logger)
	if err != nil {
		t.Fatalf("NewFeatureService error: %v", err)
	}
	predictor, err := NewPredictionService(PredictionConfig{BatchWorkers: 2}, featureService, nil, predictions, logger)
	if err != nil {
		t.Fatalf("NewPredictionService error: %v", err)
	}
	service, err := NewSyncService(cfg, provider, fixtures, teams, predictor, events, nil, logger)
	if err != nil {
		t.Fatalf("NewSyncService error: %v", err)
	}

	return &syncHarness{
		service:     service,
		provider:    provider,
		fixtures:    fixtures,
		teams:       teams,
		predictions: predictions,
		events:      events,
	}
}

func upcomingFixture(id, leagueID, homeID, awayID int64) ExternalFixture {
	return ExternalFixture{
		ExternalID:   id,
		LeagueID:     leagueID,
		HomeTeamID:   homeID,
		AwayTeamID:   awayID,
		HomeTeamName: fmt.Sprintf("Home %d", homeID),
		AwayTeamName: fmt.Sprintf("Away %d", awayID),
		KickoffAt:    time.Date(2026, time.September, 5, 15, 0, 0, 0, time.UTC),
		Status:       "SCHEDULED",
	}
}

func TestRunCycle_CompletesAndRecordsOneEvent(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39}})
	h.provider.fixturesByLeague[39] = []ExternalFixture{
		upcomingFixture(900, 39, 11, 22),
		upcomingFixture(901, 39, 33, 44),
	}

	event, err := h.service.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if event.Status != ingestion.StatusCompleted {
		t.Fatalf("expected completed cycle, got %q (%s)", event.Status, event.ErrorMessage)
	}
	if event.UsedFallback {
		t.Fatalf("no fallback data was served, event must not flag it")
	}
	if event.RecordsWritten == 0 {
		t.Fatalf("expected records written")
	}
	if got := len(h.events.all()); got != 1 {
		t.Fatalf("expected exactly one ingestion event per cycle, got %d", got)
	}

	for _, id := range []int64{900, 901} {
		if _, found, _ := h.fixtures.Get(context.Background(), id); !found {
			t.Fatalf("fixture %d was not persisted", id)
		}
		if _, found, _ := h.predictions.Get(context.Background(), id); !found {
			t.Fatalf("prediction %d was not computed", id)
		}
	}
	for _, id := range []int64{11, 22, 33, 44} {
		if _, found, _ := h.teams.Get(context.Background(), id); !found {
			t.Fatalf("team %d was not seeded", id)
		}
	}
}

func TestRunCycle_LeagueFailureIsIsolated(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39, 140}})
	h.provider.failLeagues[39] = fmt.Errorf("upstream exploded")
	h.provider.fixturesByLeague[140] = []ExternalFixture{
		upcomingFixture(910, 140, 55, 66),
	}

	event, err := h.service.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if event.Status != ingestion.StatusDegraded {
		t.Fatalf("one failed league should degrade the cycle, got %q", event.Status)
	}
	if _, found, _ := h.fixtures.Get(context.Background(), 910); !found {
		t.Fatalf("healthy league must still be processed")
	}
	if _, found, _ := h.predictions.Get(context.Background(), 910); !found {
		t.Fatalf("healthy league predictions must still be computed")
	}
}

func TestRunCycle_AllLeaguesFailingMarksCycleFailed(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39, 140}})
	h.provider.failLeagues[39] = fmt.Errorf("down")
	h.provider.failLeagues[140] = fmt.Errorf("down")

	event, err := h.service.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if event.Status != ingestion.StatusFailed {
		t.Fatalf("expected failed cycle, got %q", event.Status)
	}
	if event.ErrorMessage == "" {
		t.Fatalf("failed cycle must carry an error message")
	}
}

func TestRunCycle_FallbackServedDataDegradesCycle(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39}})
	h.provider.meta = ProviderMeta{Source: PayloadSourceSynthetic, UsedFallback: true}
	h.provider.fixturesByLeague[39] = []ExternalFixture{
		upcomingFixture(920, 39, 77, 88),
	}

	event, err := h.service.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if !event.UsedFallback {
		t.Fatalf("event must flag fallback usage")
	}
	if event.Status != ingestion.StatusDegraded {
		t.Fatalf("fallback-served cycle should be degraded, got %q", event.Status)
	}
}

func TestRunCycle_BackfillsThinFormWindows(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39}, BackfillThreshold: 8})
	h.provider.fixturesByLeague[39] = []ExternalFixture{
		upcomingFixture(930, 39, 91, 92),
	}
	h.provider.resultsByTeam[91] = resultsRun(91, "WWDLWDLW")

	if _, err := h.service.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	stored, found, err := h.teams.Get(context.Background(), 91)
	if err != nil || !found {
		t.Fatalf("team 91 missing after cycle: found=%v err=%v", found, err)
	}
	if len(stored.RecentForm) != 8 {
		t.Fatalf("expected a full form window, got %d results", len(stored.RecentForm))
	}
	if stored.RecentForm[0].FixtureID != 91*1000 {
		t.Fatalf("newest result should head the window, got fixture %d", stored.RecentForm[0].FixtureID)
	}
	if stored.Venue.HomePlayed == 0 {
		t.Fatalf("venue stats should accumulate during backfill")
	}
}

func TestRunCycle_SkipsFreshPredictions(t *testing.T) {
	t.Parallel()

	h := newSyncHarness(t, SyncConfig{TrackedLeagues: []int64{39}})
	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)
	h.service.now = func() time.Time { return now }
	h.provider.fixturesByLeague[39] = []ExternalFixture{
		upcomingFixture(940, 39, 93, 94),
	}

	if err := h.predictions.Upsert(context.Background(), freshPrediction(940, now)); err != nil {
		t.Fatalf("seed prediction: %v", err)
	}
	upsertsBefore := h.predictions.upserts

	if _, err := h.service.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if h.predictions.upserts != upsertsBefore {
		t.Fatalf("fresh prediction should not be recomputed")
	}
}

func TestSyncService_GraceWindowAnchoredToCycleDeadline(t *testing.T) {
	t.Parallel()

	harness := newSyncHarness(t, SyncConfig{CycleTimeout: 5 * time.Minute, GracePeriod: 30 * time.Second})

	cycleDeadline := time.Now().Add(90 * time.Second)
	cycleCtx, cancelCycle := context.WithDeadline(context.Background(), cycleDeadline)
	defer cancelCycle()

	graceCtx, cancelGrace := harness.service.graceContext(context.Background(), cycleCtx)
	defer cancelGrace()

	got, ok := graceCtx.Deadline()
	if !ok {
		t.Fatalf("expected the grace context to carry a deadline")
	}
	if want := cycleDeadline.Add(30 * time.Second); !got.Equal(want) {
		t.Fatalf("grace deadline = %v, want cycle deadline plus grace %v", got, want)
	}
}

func TestSyncService_GraceWindowWithoutCycleDeadline(t *testing.T) {
	t.Parallel()

	harness := newSyncHarness(t, SyncConfig{CycleTimeout: 5 * time.Minute, GracePeriod: 30 * time.Second})

	before := time.Now()
	graceCtx, cancelGrace := harness.service.graceContext(context.Background(), context.Background())
	defer cancelGrace()

	got, ok := graceCtx.Deadline()
	if !ok {
		t.Fatalf("expected the grace context to carry a deadline")
	}
	if ceiling := before.Add(5*time.Minute + 30*time.Second + time.Second); got.After(ceiling) {
		t.Fatalf("grace deadline %v exceeds cycle timeout plus grace ceiling %v", got, ceiling)
	}
}
