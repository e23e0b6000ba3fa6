package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sabiscore/predictor/internal/domain/team"
)

type TeamRepository struct {
	db *sqlx.DB
}

func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamSelectColumns = `id, league_id, name, recent_form,
	venue_home_played, venue_home_wins, venue_away_played, venue_away_wins, updated_at`

func (r *TeamRepository) Get(ctx context.Context, id int64) (team.Team, bool, error) {
	query := `SELECT ` + teamSelectColumns + ` FROM teams WHERE id = $1`

	var row teamTableModel
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if isNotFound(err) {
			return team.Team{}, false, nil
		}
		return team.Team{}, false, fmt.Errorf("get team: %w", err)
	}

	out, err := teamFromRow(row)
	if err != nil {
		return team.Team{}, false, err
	}
	return out, true, nil
}

func (r *TeamRepository) Upsert(ctx context.Context, item team.Team) error {
	if err := item.Validate(); err != nil {
		return err
	}

	row, err := teamToRow(item, time.Now().UTC())
	if err != nil {
		return err
	}

	query := `
		INSERT INTO teams (id, league_id, name, recent_form,
			venue_home_played, venue_home_wins, venue_away_played, venue_away_wins, updated_at)
		VALUES (:id, :league_id, :name, :recent_form,
			:venue_home_played, :venue_home_wins, :venue_away_played, :venue_away_wins, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			league_id = EXCLUDED.league_id,
			name = EXCLUDED.name,
			recent_form = EXCLUDED.recent_form,
			venue_home_played = EXCLUDED.venue_home_played,
			venue_home_wins = EXCLUDED.venue_home_wins,
			venue_away_played = EXCLUDED.venue_away_played,
			venue_away_wins = EXCLUDED.venue_away_wins,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert team %d: %w", item.ID, err)
	}
	return nil
}
