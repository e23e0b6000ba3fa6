package features

// SideFeatures collects per-team signals for one side of a fixture.
type SideFeatures struct {
	FormScore     float64 `json:"form_score"`
	ExpectedGoals float64 `json:"expected_goals"`
	Momentum      float64 `json:"momentum"`
	InjuryImpact  float64 `json:"injury_impact"`
	SampleSize    int     `json:"sample_size"`
}

// HeadToHead is the tally over the last N meetings, from the home
// side's perspective.
type HeadToHead struct {
	Meetings int `json:"meetings"`
	HomeWins int `json:"home_wins"`
	Draws    int `json:"draws"`
	AwayWins int `json:"away_wins"`
}

// FeatureSet is the ephemeral input to the prediction engine. It is
// computed on demand and only short-lived cached, never persisted.
type FeatureSet struct {
	FixtureID      int64        `json:"fixture_id"`
	Home           SideFeatures `json:"home"`
	Away           SideFeatures `json:"away"`
	HeadToHead     HeadToHead   `json:"head_to_head"`
	VenueAdvantage float64      `json:"venue_advantage"`
	MarketSignal   *float64     `json:"market_signal,omitempty"`
	WeatherPenalty *float64     `json:"weather_penalty,omitempty"`
	DataQuality    float64      `json:"data_quality"`
}
