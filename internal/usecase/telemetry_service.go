package usecase

import (
	"context"
	"fmt"

	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/domain/prediction"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

// Telemetry is a read-only lookup of stored predictions. Missing fixtures
// map to nil entries; nothing is computed on this path.
func (s *PredictionService) Telemetry(ctx context.Context, fixtureIDs []int64) (map[int64]*prediction.Prediction, error) {
	ctx, span := startUsecaseSpan(ctx, "PredictionService.Telemetry")
	defer span.End()

	ids := dedupeIDs(fixtureIDs)
	if len(ids) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("telemetry request of %d exceeds limit %d: %w", len(ids), s.cfg.MaxBatchSize, ErrInvalidInput)
	}

	out := make(map[int64]*prediction.Prediction, len(ids))
	for _, fixtureID := range ids {
		stored, found, err := s.predictions.Get(ctx, fixtureID)
		if err != nil {
			return nil, fmt.Errorf("load prediction %d: %w", fixtureID, err)
		}
		if !found {
			out[fixtureID] = nil
			continue
		}
		pred := stored
		out[fixtureID] = &pred
	}
	return out, nil
}

// modelStatusSample bounds how many recent predictions feed the health
// surface.
const modelStatusSample = 50

// ModelStatus counts model sources over the most recent predictions so the
// health endpoint shows whether the ML path or the rule fallback is serving.
func (s *PredictionService) ModelStatus(ctx context.Context) (map[string]int, error) {
	recent, err := s.predictions.ListRecent(ctx, modelStatusSample)
	if err != nil {
		return nil, fmt.Errorf("list recent predictions: %w", err)
	}

	counts := make(map[string]int, 2)
	for _, item := range recent {
		counts[item.ModelSource]++
	}
	return counts, nil
}

// IngestionService exposes the audit log, newest first.
type IngestionService struct {
	events ingestion.Repository
	logger *logging.Logger
}

func NewIngestionService(events ingestion.Repository, logger *logging.Logger) (*IngestionService, error) {
	if events == nil {
		return nil, fmt.Errorf("ingestion event repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IngestionService{events: events, logger: logger}, nil
}

const maxRecentEvents = 200

func (s *IngestionService) Recent(ctx context.Context, limit int) ([]ingestion.Event, error) {
	ctx, span := startUsecaseSpan(ctx, "IngestionService.Recent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if limit > maxRecentEvents {
		limit = maxRecentEvents
	}

	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent ingestion events: %w", err)
	}
	return events, nil
}
