package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sabiscore/predictor/internal/domain/fixture"
)

type FixtureRepository struct {
	db *sqlx.DB
}

func NewFixtureRepository(db *sqlx.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

const fixtureSelectColumns = `id, league_id, home_team_id, away_team_id,
	home_team, away_team, kickoff_at, status, home_score, away_score, updated_at`

func (r *FixtureRepository) Get(ctx context.Context, id int64) (fixture.Fixture, bool, error) {
	query := `SELECT ` + fixtureSelectColumns + ` FROM fixtures WHERE id = $1`

	var row fixtureTableModel
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if isNotFound(err) {
			return fixture.Fixture{}, false, nil
		}
		return fixture.Fixture{}, false, fmt.Errorf("get fixture: %w", err)
	}
	return fixtureFromRow(row), true, nil
}

func (r *FixtureRepository) Upsert(ctx context.Context, item fixture.Fixture) error {
	row := fixtureToRow(item, time.Now().UTC())

	query := `
		INSERT INTO fixtures (id, league_id, home_team_id, away_team_id,
			home_team, away_team, kickoff_at, status, home_score, away_score, updated_at)
		VALUES (:id, :league_id, :home_team_id, :away_team_id,
			:home_team, :away_team, :kickoff_at, :status, :home_score, :away_score, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			league_id = EXCLUDED.league_id,
			home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			kickoff_at = EXCLUDED.kickoff_at,
			status = EXCLUDED.status,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert fixture %d: %w", item.ID, err)
	}
	return nil
}

func (r *FixtureRepository) ListUpcomingByLeague(ctx context.Context, leagueID int64, after time.Time, limit int) ([]fixture.Fixture, error) {
	query := `SELECT ` + fixtureSelectColumns + `
		FROM fixtures
		WHERE league_id = $1 AND kickoff_at > $2 AND status <> $3
		ORDER BY kickoff_at, id
		LIMIT $4`

	var rows []fixtureTableModel
	if err := r.db.SelectContext(ctx, &rows, query, leagueID, after.UTC(), fixture.StatusFinished, limit); err != nil {
		return nil, fmt.Errorf("list upcoming fixtures: %w", err)
	}

	out := make([]fixture.Fixture, 0, len(rows))
	for _, row := range rows {
		out = append(out, fixtureFromRow(row))
	}
	return out, nil
}
