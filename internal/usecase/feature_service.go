package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/sabiscore/predictor/internal/domain/features"
	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/team"
	"github.com/sabiscore/predictor/internal/platform/cache"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

// FeatureConfig carries the tunable extraction constants. Coefficients are
// heuristics, not contracts; tests assert structural properties instead of
// exact values.
type FeatureConfig struct {
	FormWindow      int
	HeadToHeadLimit int
	InjuryImpactCap float64
	NeutralGoals    float64

	// Cache, when set, memoizes extracted FeatureSets under CacheTTL. Sync
	// cycles and batch predictions ask for the same fixture within seconds
	// of each other.
	Cache    *cache.Store
	CacheTTL time.Duration
}

func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		FormWindow:      team.FormWindowSize,
		HeadToHeadLimit: 5,
		InjuryImpactCap: 0.30,
		NeutralGoals:    1.25,
		CacheTTL:        2 * time.Minute,
	}
}

func normalizeFeatureConfig(cfg FeatureConfig) FeatureConfig {
	defaults := DefaultFeatureConfig()
	if cfg.FormWindow <= 0 {
		cfg.FormWindow = defaults.FormWindow
	}
	if cfg.HeadToHeadLimit <= 0 {
		cfg.HeadToHeadLimit = defaults.HeadToHeadLimit
	}
	if cfg.InjuryImpactCap <= 0 {
		cfg.InjuryImpactCap = defaults.InjuryImpactCap
	}
	if cfg.NeutralGoals <= 0 {
		cfg.NeutralGoals = defaults.NeutralGoals
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	return cfg
}

// FeatureService turns fixture context into a FeatureSet. Every sub-signal
// has a neutral default; a fixture always yields a usable FeatureSet even
// when every upstream read degrades.
type FeatureService struct {
	cfg      FeatureConfig
	provider SportsDataProvider
	fixtures fixture.Repository
	teams    team.Repository
	logger   *logging.Logger
}

func NewFeatureService(
	cfg FeatureConfig,
	provider SportsDataProvider,
	fixtures fixture.Repository,
	teams team.Repository,
	logger *logging.Logger,
) (*FeatureService, error) {
	if provider == nil {
		return nil, fmt.Errorf("sports data provider is required")
	}
	if fixtures == nil {
		return nil, fmt.Errorf("fixture repository is required")
	}
	if teams == nil {
		return nil, fmt.Errorf("team repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &FeatureService{
		cfg:      normalizeFeatureConfig(cfg),
		provider: provider,
		fixtures: fixtures,
		teams:    teams,
		logger:   logger,
	}, nil
}

type cachedFeatureSet struct {
	set          features.FeatureSet
	usedFallback bool
}

func featureCacheKey(fixtureID int64) string {
	return fmt.Sprintf("features:%d", fixtureID)
}

// Extract resolves the fixture and builds its FeatureSet, memoized under a
// short TTL when a cache is configured. The second return reports whether
// any upstream read was served from fallback data.
func (s *FeatureService) Extract(ctx context.Context, fixtureID int64) (features.FeatureSet, bool, error) {
	ctx, span := startUsecaseSpan(ctx, "FeatureService.Extract")
	defer span.End()

	if s.cfg.Cache == nil {
		return s.extract(ctx, fixtureID)
	}

	out, err := s.cfg.Cache.GetOrLoad(ctx, featureCacheKey(fixtureID), s.cfg.CacheTTL, func(ctx context.Context) (any, error) {
		set, usedFallback, err := s.extract(ctx, fixtureID)
		if err != nil {
			return nil, err
		}
		return cachedFeatureSet{set: set, usedFallback: usedFallback}, nil
	})
	if err != nil {
		return features.FeatureSet{}, false, err
	}
	cached, ok := out.(cachedFeatureSet)
	if !ok {
		return features.FeatureSet{}, false, fmt.Errorf("unexpected feature cache entry type %T", out)
	}
	return cached.set, cached.usedFallback, nil
}

func (s *FeatureService) extract(ctx context.Context, fixtureID int64) (features.FeatureSet, bool, error) {
	fx, usedFallback, err := s.resolveFixture(ctx, fixtureID)
	if err != nil {
		return features.FeatureSet{}, usedFallback, err
	}

	set, extractFallback := s.ExtractForFixture(ctx, fx)
	return set, usedFallback || extractFallback, nil
}

// ExtractForFixture builds features for an already-resolved fixture. It
// never fails; missing signals degrade the data quality score instead.
func (s *FeatureService) ExtractForFixture(ctx context.Context, fx fixture.Fixture) (features.FeatureSet, bool) {
	ctx, span := startUsecaseSpan(ctx, "FeatureService.ExtractForFixture")
	defer span.End()

	quality := newQualityTracker()

	homeResults, usedFallback := s.teamResults(ctx, fx.HomeTeamID)
	awayResults, awayFallback := s.teamResults(ctx, fx.AwayTeamID)
	usedFallback = usedFallback || awayFallback

	home := s.sideFeatures(homeResults, awayResults)
	away := s.sideFeatures(awayResults, homeResults)
	quality.requireSamples("home_form", home.SampleSize, s.cfg.FormWindow)
	quality.requireSamples("away_form", away.SampleSize, s.cfg.FormWindow)

	homeInjury, ok, injuryFallback := s.injuryImpact(ctx, fx.HomeTeamID)
	usedFallback = usedFallback || injuryFallback
	if ok {
		home.InjuryImpact = homeInjury
	} else {
		quality.missing("home_injuries", 0.03)
	}
	awayInjury, ok, injuryFallback := s.injuryImpact(ctx, fx.AwayTeamID)
	usedFallback = usedFallback || injuryFallback
	if ok {
		away.InjuryImpact = awayInjury
	} else {
		quality.missing("away_injuries", 0.03)
	}

	set := features.FeatureSet{
		FixtureID: fx.ID,
		Home:      home,
		Away:      away,
	}

	h2h, h2hFallback := s.headToHead(ctx, fx.HomeTeamID, fx.AwayTeamID)
	usedFallback = usedFallback || h2hFallback
	set.HeadToHead = h2h
	if h2h.Meetings == 0 {
		quality.missing("head_to_head", 0.05)
	}

	set.VenueAdvantage = s.venueAdvantage(ctx, fx.HomeTeamID, fx.AwayTeamID)

	if signal, ok, oddsFallback := s.marketSignal(ctx, fx.ID); ok {
		set.MarketSignal = &signal
		usedFallback = usedFallback || oddsFallback
	} else {
		quality.missing("market_signal", 0.05)
	}
	if penalty, ok, weatherFallback := s.weatherPenalty(ctx, fx.ID); ok {
		set.WeatherPenalty = &penalty
		usedFallback = usedFallback || weatherFallback
	} else {
		quality.missing("weather", 0.03)
	}

	if usedFallback {
		quality.missing("fallback_payloads", 0.20)
	}
	set.DataQuality = quality.score()

	if misses := quality.misses(); len(misses) > 0 {
		s.logger.DebugContext(ctx, "feature extraction degraded",
			"fixture_id", fx.ID,
			"data_quality", set.DataQuality,
			"missing_signals", strings.Join(misses, ","),
		)
	}
	return set, usedFallback
}

// resolveFixture prefers the local store; ids in the synthetic range are
// routed to the provider chain, which never reports them missing.
func (s *FeatureService) resolveFixture(ctx context.Context, fixtureID int64) (fixture.Fixture, bool, error) {
	if fixtureID <= 0 {
		return fixture.Fixture{}, false, fmt.Errorf("fixture id must be > 0: %w", ErrInvalidInput)
	}

	fx, found, err := s.fixtures.Get(ctx, fixtureID)
	if err != nil {
		return fixture.Fixture{}, false, fmt.Errorf("load fixture %d: %w", fixtureID, err)
	}
	if found {
		return fx, false, nil
	}

	external, meta, err := s.provider.FetchFixture(ctx, fixtureID)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			// Synthetic-range ids are always answerable; a provider that
			// reports one missing is broken, and that is an availability
			// problem, not a missing resource.
			if fixture.IsSynthetic(fixtureID) {
				return fixture.Fixture{}, meta.UsedFallback, fmt.Errorf("resolve synthetic fixture %d: %w", fixtureID, ErrDependencyUnavailable)
			}
			return fixture.Fixture{}, meta.UsedFallback, fmt.Errorf("fixture %d: %w", fixtureID, ErrNotFound)
		}
		return fixture.Fixture{}, meta.UsedFallback, fmt.Errorf("fetch fixture %d: %w", fixtureID, err)
	}

	resolved := fixtureFromExternal(external)
	if err := s.fixtures.Upsert(ctx, resolved); err != nil {
		s.logger.WarnContext(ctx, "persist fetched fixture failed", "fixture_id", fixtureID, "error", err)
	}
	return resolved, meta.UsedFallback, nil
}

func (s *FeatureService) teamResults(ctx context.Context, teamID int64) ([]team.Result, bool) {
	if stored, found, err := s.teams.Get(ctx, teamID); err == nil && found && len(stored.RecentForm) > 0 {
		return stored.RecentForm, false
	}

	external, meta, err := s.provider.FetchRecentResults(ctx, teamID, s.cfg.FormWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch recent results failed", "team_id", teamID, "error", err)
		return nil, meta.UsedFallback
	}

	results := make([]team.Result, 0, len(external))
	for _, r := range external {
		results = append(results, team.Result{
			FixtureID:    r.FixtureID,
			Opponent:     r.OpponentID,
			GoalsFor:     r.GoalsFor,
			GoalsAgainst: r.GoalsAgainst,
			Home:         r.Home,
			PlayedAt:     r.PlayedAt,
		})
	}
	return results, meta.UsedFallback
}

// sideFeatures computes form, expected goals and momentum for one side.
// Form uses linear decay: the most recent match carries the largest weight.
func (s *FeatureService) sideFeatures(own, opponent []team.Result) features.SideFeatures {
	out := features.SideFeatures{
		FormScore:     50,
		ExpectedGoals: s.cfg.NeutralGoals,
		SampleSize:    len(own),
	}
	if len(own) == 0 {
		return out
	}

	window := s.cfg.FormWindow
	if len(own) < window {
		window = len(own)
	}

	var weightSum, formSum, goalsFor float64
	for i := 0; i < window; i++ {
		weight := float64(window - i)
		weightSum += weight
		formSum += weight * outcomeValue(own[i].Outcome())
		goalsFor += weight * float64(own[i].GoalsFor)
	}
	out.FormScore = clamp(formSum/weightSum*100, 0, 100)

	attack := goalsFor / weightSum
	defense := s.concededRate(opponent)
	out.ExpectedGoals = clamp((attack+defense)/2, 0.2, 3.5)

	out.Momentum = momentum(own[:window])
	return out
}

func (s *FeatureService) concededRate(results []team.Result) float64 {
	if len(results) == 0 {
		return s.cfg.NeutralGoals
	}
	window := s.cfg.FormWindow
	if len(results) < window {
		window = len(results)
	}

	var weightSum, conceded float64
	for i := 0; i < window; i++ {
		weight := float64(window - i)
		weightSum += weight
		conceded += weight * float64(results[i].GoalsAgainst)
	}
	return conceded / weightSum
}

// momentum compares points in the newer half of the window against the
// older half, scaled to [-1, 1].
func momentum(results []team.Result) float64 {
	if len(results) < 2 {
		return 0
	}
	half := len(results) / 2
	recent := averagePoints(results[:half])
	older := averagePoints(results[half:])
	return clamp((recent-older)/3, -1, 1)
}

func averagePoints(results []team.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var points float64
	for _, r := range results {
		switch r.Outcome() {
		case 'W':
			points += 3
		case 'D':
			points += 1
		}
	}
	return points / float64(len(results))
}

func (s *FeatureService) headToHead(ctx context.Context, homeTeamID, awayTeamID int64) (features.HeadToHead, bool) {
	results, meta, err := s.provider.FetchHeadToHead(ctx, homeTeamID, awayTeamID, s.cfg.HeadToHeadLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch head to head failed", "home_team_id", homeTeamID, "away_team_id", awayTeamID, "error", err)
		return features.HeadToHead{}, meta.UsedFallback
	}

	tally := features.HeadToHead{Meetings: len(results)}
	for _, r := range results {
		switch r.Outcome() {
		case 'W':
			tally.HomeWins++
		case 'D':
			tally.Draws++
		default:
			tally.AwayWins++
		}
	}
	return tally, meta.UsedFallback
}

// venueAdvantage is the home side's home win rate minus the away side's
// away win rate. With no venue samples it falls back to the league-typical
// home edge.
func (s *FeatureService) venueAdvantage(ctx context.Context, homeTeamID, awayTeamID int64) float64 {
	const defaultHomeEdge = 0.10

	homeTeam, homeFound, homeErr := s.teams.Get(ctx, homeTeamID)
	awayTeam, awayFound, awayErr := s.teams.Get(ctx, awayTeamID)
	if homeErr != nil || awayErr != nil || !homeFound || !awayFound {
		return defaultHomeEdge
	}
	if homeTeam.Venue.HomePlayed == 0 && awayTeam.Venue.AwayPlayed == 0 {
		return defaultHomeEdge
	}
	return clamp(homeTeam.Venue.HomeWinRate()-awayTeam.Venue.AwayWinRate(), -0.5, 0.5)
}

var injuryPositionWeights = map[string]float64{
	"GK": 0.08,
	"DF": 0.05,
	"MF": 0.06,
	"FW": 0.07,
}

func (s *FeatureService) injuryImpact(ctx context.Context, teamID int64) (float64, bool, bool) {
	injuries, meta, err := s.provider.FetchInjuries(ctx, teamID)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch injuries failed", "team_id", teamID, "error", err)
		return 0, false, meta.UsedFallback
	}

	var impact float64
	for _, injury := range injuries {
		weight, ok := injuryPositionWeights[strings.ToUpper(strings.TrimSpace(injury.Position))]
		if !ok {
			weight = 0.04
		}
		if strings.EqualFold(injury.Severity, "doubtful") {
			weight /= 2
		}
		impact += weight
	}
	if impact > s.cfg.InjuryImpactCap {
		impact = s.cfg.InjuryImpactCap
	}
	return -impact, true, meta.UsedFallback
}

// marketSignal is the overround-free implied home win probability.
func (s *FeatureService) marketSignal(ctx context.Context, fixtureID int64) (float64, bool, bool) {
	odds, meta, err := s.provider.FetchOdds(ctx, fixtureID)
	if err != nil || odds == nil {
		return 0, false, meta.UsedFallback
	}

	invHome := 1 / odds.Home
	invDraw := 1 / odds.Draw
	invAway := 1 / odds.Away
	total := invHome + invDraw + invAway
	if total <= 0 {
		return 0, false, meta.UsedFallback
	}
	return invHome / total, true, meta.UsedFallback
}

// weatherPenalty trims expected goals for rain and strong wind. Mild
// conditions contribute nothing.
func (s *FeatureService) weatherPenalty(ctx context.Context, fixtureID int64) (float64, bool, bool) {
	weather, meta, err := s.provider.FetchWeather(ctx, fixtureID)
	if err != nil || weather == nil {
		return 0, false, meta.UsedFallback
	}

	penalty := weather.Precipitation * 0.02
	if weather.WindKph > 20 {
		penalty += (weather.WindKph - 20) * 0.004
	}
	return clamp(penalty, 0, 0.25), true, meta.UsedFallback
}

func fixtureFromExternal(external ExternalFixture) fixture.Fixture {
	return fixture.Fixture{
		ID:         external.ExternalID,
		LeagueID:   external.LeagueID,
		HomeTeamID: external.HomeTeamID,
		AwayTeamID: external.AwayTeamID,
		HomeTeam:   external.HomeTeamName,
		AwayTeam:   external.AwayTeamName,
		KickoffAt:  external.KickoffAt.UTC(),
		Status:     fixture.NormalizeStatus(external.Status),
		HomeScore:  external.HomeScore,
		AwayScore:  external.AwayScore,
	}
}

func outcomeValue(outcome byte) float64 {
	switch outcome {
	case 'W':
		return 1
	case 'D':
		return 0.5
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// qualityTracker accumulates data-quality decrements per missing signal.
type qualityTracker struct {
	deduction float64
	names     []string
}

func newQualityTracker() *qualityTracker {
	return &qualityTracker{}
}

func (q *qualityTracker) missing(name string, penalty float64) {
	q.deduction += penalty
	q.names = append(q.names, name)
}

func (q *qualityTracker) requireSamples(name string, have, want int) {
	if have >= want || want <= 0 {
		return
	}
	q.missing(name, 0.10*float64(want-have)/float64(want))
}

func (q *qualityTracker) score() float64 {
	return clamp(1-q.deduction, 0.05, 1)
}

func (q *qualityTracker) misses() []string {
	return q.names
}
