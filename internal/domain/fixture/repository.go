package fixture

import (
	"context"
	"time"
)

// Repository stores fixtures keyed by their upstream id. Get reports
// absence with found=false, not an error.
type Repository interface {
	Get(ctx context.Context, id int64) (Fixture, bool, error)
	Upsert(ctx context.Context, item Fixture) error
	ListUpcomingByLeague(ctx context.Context, leagueID int64, after time.Time, limit int) ([]Fixture, error)
}
