package fixture

import (
	"strings"
	"time"
)

const (
	StatusScheduled = "SCHEDULED"
	StatusLive      = "LIVE"
	StatusFinished  = "FINISHED"
)

// SyntheticIDFloor marks the id range reserved for synthesized fixtures.
// IDs at or above the floor never exist upstream and must not 404; they are
// resolved by the fallback synthesizer instead.
const SyntheticIDFloor int64 = 1_000_000

// Fixture represents one scheduled match.
type Fixture struct {
	ID         int64
	LeagueID   int64
	HomeTeamID int64
	AwayTeamID int64
	HomeTeam   string
	AwayTeam   string
	KickoffAt  time.Time
	Status     string
	HomeScore  *int
	AwayScore  *int
}

func IsSynthetic(id int64) bool {
	return id >= SyntheticIDFloor
}

func NormalizeStatus(value string) string {
	status := strings.ToUpper(strings.TrimSpace(value))
	switch status {
	case "":
		return StatusScheduled
	case "IN_PLAY", "HT", "1H", "2H", "ET":
		return StatusLive
	case "FT", "AET", "PEN":
		return StatusFinished
	default:
		return status
	}
}

func IsFinishedStatus(status string) bool {
	return NormalizeStatus(status) == StatusFinished
}
