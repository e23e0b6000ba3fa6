package sportsdata

import (
	"strings"
	"time"
)

// Provider wire shapes. Every endpoint wraps its payload in {"data": ...}.

type fixtureEnvelope struct {
	Data []fixtureItem `json:"data"`
}

type fixtureItem struct {
	ID        int64      `json:"id"`
	LeagueID  int64      `json:"league_id"`
	HomeTeam  teamRef    `json:"home_team"`
	AwayTeam  teamRef    `json:"away_team"`
	KickoffAt string     `json:"kickoff_at"`
	Status    string     `json:"status"`
	Scores    *scorePair `json:"scores,omitempty"`
}

type teamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type scorePair struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

type teamEnvelope struct {
	Data teamItem `json:"data"`
}

type teamItem struct {
	ID       int64  `json:"id"`
	LeagueID int64  `json:"league_id"`
	Name     string `json:"name"`
}

type resultEnvelope struct {
	Data []resultItem `json:"data"`
}

type resultItem struct {
	FixtureID    int64  `json:"fixture_id"`
	TeamID       int64  `json:"team_id"`
	OpponentID   int64  `json:"opponent_id"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
	Home         bool   `json:"home"`
	PlayedAt     string `json:"played_at"`
}

type injuryEnvelope struct {
	Data []injuryItem `json:"data"`
}

type injuryItem struct {
	Player   string `json:"player"`
	Position string `json:"position"`
	Severity string `json:"severity"`
}

type oddsEnvelope struct {
	Data *oddsItem `json:"data"`
}

type oddsItem struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

type weatherEnvelope struct {
	Data *weatherItem `json:"data"`
}

type weatherItem struct {
	TempCelsius   float64 `json:"temp_c"`
	WindKph       float64 `json:"wind_kph"`
	Precipitation float64 `json:"precip_mm"`
}

func parseProviderTime(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
