package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/domain/prediction"
	"github.com/sabiscore/predictor/internal/domain/team"
)

type stubFixtureRepo struct {
	mu    sync.Mutex
	items map[int64]fixture.Fixture
	err   error
}

func newStubFixtureRepo() *stubFixtureRepo {
	return &stubFixtureRepo{items: make(map[int64]fixture.Fixture)}
}

func (r *stubFixtureRepo) Get(_ context.Context, id int64) (fixture.Fixture, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return fixture.Fixture{}, false, r.err
	}
	fx, ok := r.items[id]
	return fx, ok, nil
}

func (r *stubFixtureRepo) Upsert(_ context.Context, item fixture.Fixture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items[item.ID] = item
	return nil
}

func (r *stubFixtureRepo) ListUpcomingByLeague(_ context.Context, leagueID int64, after time.Time, limit int) ([]fixture.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var out []fixture.Fixture
	for _, fx := range r.items {
		if fx.LeagueID == leagueID && fx.KickoffAt.After(after) {
			out = append(out, fx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KickoffAt.Before(out[j].KickoffAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubTeamRepo struct {
	mu    sync.Mutex
	items map[int64]team.Team
	err   error
}

func newStubTeamRepo() *stubTeamRepo {
	return &stubTeamRepo{items: make(map[int64]team.Team)}
}

func (r *stubTeamRepo) Get(_ context.Context, id int64) (team.Team, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return team.Team{}, false, r.err
	}
	item, ok := r.items[id]
	return item, ok, nil
}

func (r *stubTeamRepo) Upsert(_ context.Context, item team.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items[item.ID] = item
	return nil
}

type stubPredictionRepo struct {
	mu      sync.Mutex
	items   map[int64]prediction.Prediction
	upserts int
	err     error
}

func newStubPredictionRepo() *stubPredictionRepo {
	return &stubPredictionRepo{items: make(map[int64]prediction.Prediction)}
}

func (r *stubPredictionRepo) Get(_ context.Context, fixtureID int64) (prediction.Prediction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return prediction.Prediction{}, false, r.err
	}
	item, ok := r.items[fixtureID]
	return item, ok, nil
}

func (r *stubPredictionRepo) Upsert(_ context.Context, item prediction.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items[item.FixtureID] = item
	r.upserts++
	return nil
}

func (r *stubPredictionRepo) ListRecent(_ context.Context, limit int) ([]prediction.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]prediction.Prediction, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubEventRepo struct {
	mu     sync.Mutex
	events []ingestion.Event
	err    error
}

func (r *stubEventRepo) Append(_ context.Context, event ingestion.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *stubEventRepo) ListRecent(_ context.Context, limit int) ([]ingestion.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ingestion.Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

func (r *stubEventRepo) all() []ingestion.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingestion.Event(nil), r.events...)
}

// stubProvider serves canned upstream data. Per-league and per-fixture
// errors simulate partial upstream outages.
type stubProvider struct {
	mu sync.Mutex

	fixturesByLeague map[int64][]ExternalFixture
	fixtureByID      map[int64]ExternalFixture
	resultsByTeam    map[int64][]ExternalResult
	headToHead       []ExternalResult
	injuriesByTeam   map[int64][]ExternalInjury
	oddsByFixture    map[int64]*ExternalOdds
	weatherByFixture map[int64]*ExternalWeather

	meta         ProviderMeta
	failLeagues  map[int64]error
	failFixtures map[int64]error
	failResults  bool

	recentResultCalls int
	upcomingCalls     int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		fixturesByLeague: make(map[int64][]ExternalFixture),
		fixtureByID:      make(map[int64]ExternalFixture),
		resultsByTeam:    make(map[int64][]ExternalResult),
		injuriesByTeam:   make(map[int64][]ExternalInjury),
		oddsByFixture:    make(map[int64]*ExternalOdds),
		weatherByFixture: make(map[int64]*ExternalWeather),
		failLeagues:      make(map[int64]error),
		failFixtures:     make(map[int64]error),
	}
}

func (p *stubProvider) FetchUpcomingFixtures(_ context.Context, leagueID int64, _ int) ([]ExternalFixture, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upcomingCalls++
	if err := p.failLeagues[leagueID]; err != nil {
		return nil, p.meta, err
	}
	return append([]ExternalFixture(nil), p.fixturesByLeague[leagueID]...), p.meta, nil
}

func (p *stubProvider) FetchFixture(_ context.Context, fixtureID int64) (ExternalFixture, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failFixtures[fixtureID]; err != nil {
		return ExternalFixture{}, p.meta, err
	}
	if fx, ok := p.fixtureByID[fixtureID]; ok {
		return fx, p.meta, nil
	}
	// Synthetic-range ids are always answerable, matching the provider
	// client contract. failFixtures above still lets a test simulate a
	// provider that breaks that contract.
	if fixture.IsSynthetic(fixtureID) {
		return ExternalFixture{
			ExternalID:   fixtureID,
			LeagueID:     1,
			HomeTeamID:   fixtureID%1000 + 9001,
			AwayTeamID:   fixtureID%1000 + 9002,
			HomeTeamName: fmt.Sprintf("Synthetic Home %d", fixtureID),
			AwayTeamName: fmt.Sprintf("Synthetic Away %d", fixtureID),
			KickoffAt:    time.Date(2026, time.September, 5, 15, 0, 0, 0, time.UTC),
			Status:       "SCHEDULED",
		}, ProviderMeta{Source: PayloadSourceSynthetic, UsedFallback: true}, nil
	}
	return ExternalFixture{}, p.meta, fmt.Errorf("fixture %d: %w", fixtureID, ErrNotFound)
}

func (p *stubProvider) FetchTeam(_ context.Context, teamID int64) (ExternalTeam, ProviderMeta, error) {
	return ExternalTeam{ExternalID: teamID, Name: fmt.Sprintf("Team %d", teamID)}, p.meta, nil
}

func (p *stubProvider) FetchRecentResults(_ context.Context, teamID int64, _ int) ([]ExternalResult, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recentResultCalls++
	if p.failResults {
		return nil, p.meta, fmt.Errorf("results unavailable")
	}
	return append([]ExternalResult(nil), p.resultsByTeam[teamID]...), p.meta, nil
}

func (p *stubProvider) FetchHeadToHead(_ context.Context, _, _ int64, _ int) ([]ExternalResult, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ExternalResult(nil), p.headToHead...), p.meta, nil
}

func (p *stubProvider) FetchInjuries(_ context.Context, teamID int64) ([]ExternalInjury, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ExternalInjury(nil), p.injuriesByTeam[teamID]...), p.meta, nil
}

func (p *stubProvider) FetchOdds(_ context.Context, fixtureID int64) (*ExternalOdds, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oddsByFixture[fixtureID], p.meta, nil
}

func (p *stubProvider) FetchWeather(_ context.Context, fixtureID int64) (*ExternalWeather, ProviderMeta, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.weatherByFixture[fixtureID], p.meta, nil
}

type stubModel struct {
	mu          sync.Mutex
	outputs     map[int64]ModelOutput
	err         error
	singleCalls int
	batchCalls  int
}

func (m *stubModel) Predict(_ context.Context, input ModelInput) (ModelOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singleCalls++
	if m.err != nil {
		return ModelOutput{}, m.err
	}
	output, ok := m.outputs[input.FixtureID]
	if !ok {
		return ModelOutput{}, fmt.Errorf("no output for fixture %d", input.FixtureID)
	}
	return output, nil
}

func (m *stubModel) PredictBatch(_ context.Context, inputs []ModelInput) ([]ModelOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]ModelOutput, 0, len(inputs))
	for _, input := range inputs {
		if output, ok := m.outputs[input.FixtureID]; ok {
			out = append(out, output)
		}
	}
	return out, nil
}

func freshPrediction(fixtureID int64, now time.Time) prediction.Prediction {
	return prediction.Prediction{
		FixtureID:     fixtureID,
		Probabilities: prediction.Probabilities{Home: 45, Draw: 28, Away: 27},
		Outcome:       prediction.OutcomeHome,
		Confidence:    prediction.ConfidenceMedium,
		ModelSource:   prediction.SourceRuleFallback,
		CreatedAt:     now.Add(-10 * time.Minute),
		StaleAfter:    now.Add(80 * time.Minute),
	}
}

// resultsRun builds a newest-first result window with the given outcomes,
// 'W', 'D' or 'L' from the team's perspective.
func resultsRun(teamID int64, outcomes string) []ExternalResult {
	playedAt := time.Date(2026, time.August, 29, 15, 0, 0, 0, time.UTC)
	out := make([]ExternalResult, 0, len(outcomes))
	for i, outcome := range outcomes {
		goalsFor, goalsAgainst := 1, 1
		switch outcome {
		case 'W':
			goalsFor, goalsAgainst = 2, 0
		case 'L':
			goalsFor, goalsAgainst = 0, 2
		}
		out = append(out, ExternalResult{
			FixtureID:    teamID*1000 + int64(i),
			TeamID:       teamID,
			OpponentID:   teamID + 50,
			GoalsFor:     goalsFor,
			GoalsAgainst: goalsAgainst,
			Home:         i%2 == 0,
			PlayedAt:     playedAt.AddDate(0, 0, -7*i),
		})
	}
	return out
}
