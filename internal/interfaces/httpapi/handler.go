package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
)

type Handler struct {
	predictionService *usecase.PredictionService
	fixtureService    *usecase.FixtureService
	ingestionService  *usecase.IngestionService
	breakers          *resilience.Registry
	logger            *logging.Logger
	validator         *validator.Validate
}

func NewHandler(
	predictionService *usecase.PredictionService,
	fixtureService *usecase.FixtureService,
	ingestionService *usecase.IngestionService,
	breakers *resilience.Registry,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		predictionService: predictionService,
		fixtureService:    fixtureService,
		ingestionService:  ingestionService,
		breakers:          breakers,
		logger:            logger,
		validator:         validator.New(),
	}
}

type batchPredictRequest struct {
	FixtureIDs []int64 `json:"fixture_ids" validate:"required,min=1,max=50,dive,gt=0"`
}

type fixtureDTO struct {
	ID         int64     `json:"id"`
	LeagueID   int64     `json:"league_id"`
	HomeTeamID int64     `json:"home_team_id"`
	AwayTeamID int64     `json:"away_team_id"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	KickoffAt  time.Time `json:"kickoff_at"`
	Status     string    `json:"status"`
	HomeScore  *int      `json:"home_score,omitempty"`
	AwayScore  *int      `json:"away_score,omitempty"`
}

func fixtureToDTO(f fixture.Fixture) fixtureDTO {
	return fixtureDTO{
		ID:         f.ID,
		LeagueID:   f.LeagueID,
		HomeTeamID: f.HomeTeamID,
		AwayTeamID: f.AwayTeamID,
		HomeTeam:   f.HomeTeam,
		AwayTeam:   f.AwayTeam,
		KickoffAt:  f.KickoffAt,
		Status:     f.Status,
		HomeScore:  f.HomeScore,
		AwayScore:  f.AwayScore,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload := map[string]any{"status": "ok"}
	if h.breakers != nil {
		payload["circuits"] = h.breakers.Snapshots()
	}
	if counts, err := h.predictionService.ModelStatus(ctx); err == nil {
		payload["model_sources"] = counts
	}

	writeSuccess(ctx, w, http.StatusOK, payload)
}

func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetPrediction")
	defer span.End()

	fixtureID, err := parseID(r.PathValue("fixtureID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	pred, err := h.predictionService.GetOrPredict(ctx, fixtureID)
	if err != nil {
		h.logger.WarnContext(ctx, "get prediction failed", "fixture_id", fixtureID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, pred)
}

func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PredictBatch")
	defer span.End()

	var req batchPredictRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(req); err != nil {
		writeError(ctx, w, err)
		return
	}

	predictions, err := h.predictionService.PredictBatch(ctx, req.FixtureIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "batch predict failed", "fixture_count", len(req.FixtureIDs), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"predictions": predictions})
}

func (h *Handler) PredictionTelemetry(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.PredictionTelemetry")
	defer span.End()

	fixtureIDs, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	predictions, err := h.predictionService.Telemetry(ctx, fixtureIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "prediction telemetry failed", "fixture_count", len(fixtureIDs), "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]any{"predictions": predictions})
}

func (h *Handler) RecentIngestionEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RecentIngestionEvents")
	defer span.End()

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	events, err := h.ingestionService.Recent(ctx, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "list ingestion events failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, events)
}

func (h *Handler) ListUpcomingFixtures(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListUpcomingFixtures")
	defer span.End()

	leagueID, err := parseID(r.URL.Query().Get("league"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	fixtures, err := h.fixtureService.ListUpcoming(ctx, leagueID, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "list upcoming fixtures failed", "league_id", leagueID, "error", err)
		writeError(ctx, w, err)
		return
	}

	items := make([]fixtureDTO, 0, len(fixtures))
	for _, f := range fixtures {
		items = append(items, fixtureToDTO(f))
	}

	writeSuccess(ctx, w, http.StatusOK, items)
}

func (h *Handler) validateRequest(req any) error {
	if err := h.validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrValidation, err)
	}
	return nil
}

func parseID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer, got %q", usecase.ErrInvalidInput, raw)
	}
	return value, nil
}

func parseIDList(raw string) ([]int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: ids query parameter is required", usecase.ErrInvalidInput)
	}

	parts := strings.Split(trimmed, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalInt(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer, got %q", usecase.ErrInvalidInput, raw)
	}
	return value, nil
}
