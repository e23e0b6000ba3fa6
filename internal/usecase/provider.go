package usecase

import (
	"context"
	"time"

	"github.com/sabiscore/predictor/internal/domain/features"
)

// Payload sources reported by the sports-data provider chain.
const (
	PayloadSourceNetwork    = "network"
	PayloadSourceCache      = "cache"
	PayloadSourceStaleCache = "stale-cache"
	PayloadSourceSynthetic  = "synthetic"
)

// ProviderMeta reports how a payload was obtained so callers can surface
// degraded reads in telemetry.
type ProviderMeta struct {
	Source       string
	UsedFallback bool
}

type ExternalFixture struct {
	ExternalID   int64
	LeagueID     int64
	HomeTeamID   int64
	AwayTeamID   int64
	HomeTeamName string
	AwayTeamName string
	KickoffAt    time.Time
	Status       string
	HomeScore    *int
	AwayScore    *int
}

type ExternalTeam struct {
	ExternalID int64
	LeagueID   int64
	Name       string
}

// ExternalResult is one finished match involving the requested team.
type ExternalResult struct {
	FixtureID    int64
	TeamID       int64
	OpponentID   int64
	GoalsFor     int
	GoalsAgainst int
	Home         bool
	PlayedAt     time.Time
}

// Outcome returns 'W', 'D' or 'L'.
func (r ExternalResult) Outcome() byte {
	switch {
	case r.GoalsFor > r.GoalsAgainst:
		return 'W'
	case r.GoalsFor < r.GoalsAgainst:
		return 'L'
	default:
		return 'D'
	}
}

type ExternalInjury struct {
	PlayerName string
	Position   string
	Severity   string
}

// ExternalOdds is the market signal: decimal odds for the three outcomes.
type ExternalOdds struct {
	Home float64
	Draw float64
	Away float64
}

type ExternalWeather struct {
	TempCelsius   float64
	WindKph       float64
	Precipitation float64
}

// SportsDataProvider is implemented by external/sportsdata. Every method
// degrades through cache, breaker-gated network, stale cache and synthetic
// fallback; none of them returns a hard failure for synthetic-range ids.
type SportsDataProvider interface {
	FetchUpcomingFixtures(ctx context.Context, leagueID int64, limit int) ([]ExternalFixture, ProviderMeta, error)
	FetchFixture(ctx context.Context, fixtureID int64) (ExternalFixture, ProviderMeta, error)
	FetchTeam(ctx context.Context, teamID int64) (ExternalTeam, ProviderMeta, error)
	FetchRecentResults(ctx context.Context, teamID int64, limit int) ([]ExternalResult, ProviderMeta, error)
	FetchHeadToHead(ctx context.Context, homeTeamID, awayTeamID int64, limit int) ([]ExternalResult, ProviderMeta, error)
	FetchInjuries(ctx context.Context, teamID int64) ([]ExternalInjury, ProviderMeta, error)
	FetchOdds(ctx context.Context, fixtureID int64) (*ExternalOdds, ProviderMeta, error)
	FetchWeather(ctx context.Context, fixtureID int64) (*ExternalWeather, ProviderMeta, error)
}

// ModelInput is one fixture's feature payload sent to the ML service.
type ModelInput struct {
	FixtureID int64
	Features  features.FeatureSet
}

// ModelOutput carries raw (unnormalized) percentages plus expected goals.
type ModelOutput struct {
	FixtureID    int64
	Home         float64
	Draw         float64
	Away         float64
	ExpectedHome float64
	ExpectedAway float64
}

// ModelClient is implemented by external/mlservice. It is optional: any
// error is absorbed by the rule-based fallback path.
type ModelClient interface {
	Predict(ctx context.Context, input ModelInput) (ModelOutput, error)
	PredictBatch(ctx context.Context, inputs []ModelInput) ([]ModelOutput, error)
}
