package team

import (
	"fmt"
	"time"
)

// FormWindowSize is the number of recent results kept per team.
const FormWindowSize = 8

// Result is one finished match from the team's perspective.
type Result struct {
	FixtureID    int64
	Opponent     int64
	GoalsFor     int
	GoalsAgainst int
	Home         bool
	PlayedAt     time.Time
}

// Outcome returns 'W', 'D' or 'L'.
func (r Result) Outcome() byte {
	switch {
	case r.GoalsFor > r.GoalsAgainst:
		return 'W'
	case r.GoalsFor < r.GoalsAgainst:
		return 'L'
	default:
		return 'D'
	}
}

// VenueStats tracks home/away splits used for the venue-advantage signal.
type VenueStats struct {
	HomePlayed int
	HomeWins   int
	AwayPlayed int
	AwayWins   int
}

func (v VenueStats) HomeWinRate() float64 {
	if v.HomePlayed == 0 {
		return 0
	}
	return float64(v.HomeWins) / float64(v.HomePlayed)
}

func (v VenueStats) AwayWinRate() float64 {
	if v.AwayPlayed == 0 {
		return 0
	}
	return float64(v.AwayWins) / float64(v.AwayPlayed)
}

// Team is a club with its rolling form window, newest result first.
type Team struct {
	ID         int64
	LeagueID   int64
	Name       string
	RecentForm []Result
	Venue      VenueStats
}

func (t Team) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("team id must be > 0")
	}
	if t.Name == "" {
		return fmt.Errorf("team name is required")
	}

	return nil
}

// PushResult prepends a result and trims the window to FormWindowSize.
func (t *Team) PushResult(r Result) {
	for _, existing := range t.RecentForm {
		if existing.FixtureID == r.FixtureID {
			return
		}
	}
	t.RecentForm = append([]Result{r}, t.RecentForm...)
	if len(t.RecentForm) > FormWindowSize {
		t.RecentForm = t.RecentForm[:FormWindowSize]
	}
}
