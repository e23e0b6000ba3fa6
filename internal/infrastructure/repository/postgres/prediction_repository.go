package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sabiscore/predictor/internal/domain/prediction"
)

// PredictionRepository keeps one row per fixture; the fixture foreign key
// enforces the reference the domain interface requires.
type PredictionRepository struct {
	db *sqlx.DB
}

func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionSelectColumns = `fixture_id, prob_home, prob_draw, prob_away,
	xg_home, xg_away, outcome, confidence, model_source, factors,
	over_2_5, under_2_5, btts, data_quality, created_at, stale_after`

func (r *PredictionRepository) Get(ctx context.Context, fixtureID int64) (prediction.Prediction, bool, error) {
	query := `SELECT ` + predictionSelectColumns + ` FROM predictions WHERE fixture_id = $1`

	var row predictionTableModel
	if err := r.db.GetContext(ctx, &row, query, fixtureID); err != nil {
		if isNotFound(err) {
			return prediction.Prediction{}, false, nil
		}
		return prediction.Prediction{}, false, fmt.Errorf("get prediction: %w", err)
	}

	out, err := predictionFromRow(row)
	if err != nil {
		return prediction.Prediction{}, false, err
	}
	return out, true, nil
}

func (r *PredictionRepository) Upsert(ctx context.Context, item prediction.Prediction) error {
	if err := item.Validate(); err != nil {
		return err
	}

	row, err := predictionToRow(item)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO predictions (fixture_id, prob_home, prob_draw, prob_away,
			xg_home, xg_away, outcome, confidence, model_source, factors,
			over_2_5, under_2_5, btts, data_quality, created_at, stale_after)
		VALUES (:fixture_id, :prob_home, :prob_draw, :prob_away,
			:xg_home, :xg_away, :outcome, :confidence, :model_source, :factors,
			:over_2_5, :under_2_5, :btts, :data_quality, :created_at, :stale_after)
		ON CONFLICT (fixture_id) DO UPDATE SET
			prob_home = EXCLUDED.prob_home,
			prob_draw = EXCLUDED.prob_draw,
			prob_away = EXCLUDED.prob_away,
			xg_home = EXCLUDED.xg_home,
			xg_away = EXCLUDED.xg_away,
			outcome = EXCLUDED.outcome,
			confidence = EXCLUDED.confidence,
			model_source = EXCLUDED.model_source,
			factors = EXCLUDED.factors,
			over_2_5 = EXCLUDED.over_2_5,
			under_2_5 = EXCLUDED.under_2_5,
			btts = EXCLUDED.btts,
			data_quality = EXCLUDED.data_quality,
			created_at = EXCLUDED.created_at,
			stale_after = EXCLUDED.stale_after`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("upsert prediction %d: %w", item.FixtureID, err)
	}
	return nil
}

func (r *PredictionRepository) ListRecent(ctx context.Context, limit int) ([]prediction.Prediction, error) {
	query := `SELECT ` + predictionSelectColumns + `
		FROM predictions
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []predictionTableModel
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list recent predictions: %w", err)
	}

	out := make([]prediction.Prediction, 0, len(rows))
	for _, row := range rows {
		item, err := predictionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
