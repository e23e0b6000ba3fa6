package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
)

type IngestionEventRepository struct {
	db *sqlx.DB
}

func NewIngestionEventRepository(db *sqlx.DB) *IngestionEventRepository {
	return &IngestionEventRepository{db: db}
}

func (r *IngestionEventRepository) Append(ctx context.Context, event ingestion.Event) error {
	row, err := ingestionEventToRow(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ingestion_events (id, source, scope, status, started_at,
			duration_ms, records_written, used_fallback, error_message, metadata)
		VALUES (:id, :source, :scope, :status, :started_at,
			:duration_ms, :records_written, :used_fallback, :error_message, :metadata)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("append ingestion event %s: %w", event.ID, err)
	}
	return nil
}

func (r *IngestionEventRepository) ListRecent(ctx context.Context, limit int) ([]ingestion.Event, error) {
	query := `
		SELECT id, source, scope, status, started_at,
			duration_ms, records_written, used_fallback, error_message, metadata
		FROM ingestion_events
		ORDER BY started_at DESC, id DESC
		LIMIT $1`

	var rows []ingestionEventTableModel
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list recent ingestion events: %w", err)
	}

	out := make([]ingestion.Event, 0, len(rows))
	for _, row := range rows {
		event, err := ingestionEventFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}
