package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sabiscore/predictor/internal/domain/features"
	"github.com/sabiscore/predictor/internal/domain/prediction"
	"github.com/sabiscore/predictor/internal/platform/logging"
)

// PredictionConfig carries engine tunables. Rule coefficients live in
// ruleWeights; they are heuristics validated through structural tests, not
// exact-value contracts.
type PredictionConfig struct {
	PredictionTTL time.Duration
	BatchWorkers  int
	MaxBatchSize  int
	MLEnabled     bool
	MLTimeout     time.Duration
	Temperature   float64
}

func normalizePredictionConfig(cfg PredictionConfig) PredictionConfig {
	if cfg.PredictionTTL <= 0 {
		cfg.PredictionTTL = 90 * time.Minute
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.MLTimeout <= 0 {
		cfg.MLTimeout = 30 * time.Second
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	return cfg
}

type ruleWeights struct {
	baseHome, baseDraw, baseAway float64
	formCoeff                    float64
	xgCoeff, xgCap               float64
	momentumCoeff                float64
	venueCoeff                   float64
	marketBlend                  float64
}

var defaultRuleWeights = ruleWeights{
	baseHome:      0.40,
	baseDraw:      0.27,
	baseAway:      0.33,
	formCoeff:     0.001,
	xgCoeff:       0.15,
	xgCap:         0.25,
	momentumCoeff: 0.05,
	venueCoeff:    0.5,
	marketBlend:   0.2,
}

// neutralPrior replaces degenerate probability inputs before normalization.
var neutralPrior = prediction.Probabilities{Home: 40, Draw: 27, Away: 33}

// PredictionService is the hybrid engine: an optional ML path with a
// bounded timeout, backed by a rule-based statistical fallback that always
// produces a valid prediction.
type PredictionService struct {
	cfg         PredictionConfig
	weights     ruleWeights
	features    *FeatureService
	model       ModelClient
	predictions prediction.Repository
	logger      *logging.Logger
	now         func() time.Time
}

func NewPredictionService(
	cfg PredictionConfig,
	featureService *FeatureService,
	model ModelClient,
	predictions prediction.Repository,
	logger *logging.Logger,
) (*PredictionService, error) {
	if featureService == nil {
		return nil, fmt.Errorf("feature service is required")
	}
	if predictions == nil {
		return nil, fmt.Errorf("prediction repository is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &PredictionService{
		cfg:         normalizePredictionConfig(cfg),
		weights:     defaultRuleWeights,
		features:    featureService,
		model:       model,
		predictions: predictions,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// GetOrPredict serves the stored prediction while it is fresh and computes
// a new one otherwise.
func (s *PredictionService) GetOrPredict(ctx context.Context, fixtureID int64) (prediction.Prediction, error) {
	ctx, span := startUsecaseSpan(ctx, "PredictionService.GetOrPredict")
	defer span.End()

	if fixtureID <= 0 {
		return prediction.Prediction{}, fmt.Errorf("fixture id must be > 0: %w", ErrInvalidInput)
	}

	stored, found, err := s.predictions.Get(ctx, fixtureID)
	if err == nil && found && !stored.IsStale(s.now()) {
		return stored, nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "load stored prediction failed", "fixture_id", fixtureID, "error", err)
	}

	return s.Predict(ctx, fixtureID)
}

// Predict computes and persists a fresh prediction for one fixture.
func (s *PredictionService) Predict(ctx context.Context, fixtureID int64) (prediction.Prediction, error) {
	ctx, span := startUsecaseSpan(ctx, "PredictionService.Predict")
	defer span.End()

	set, usedFallback, err := s.features.Extract(ctx, fixtureID)
	if err != nil {
		return prediction.Prediction{}, err
	}

	pred := s.predictFromFeatures(ctx, set)
	s.persist(ctx, &pred, usedFallback)
	return pred, nil
}

// PredictBatch predicts many fixtures at once. Feature extraction fans out
// over a bounded worker pool, ML inference is grouped into one batched
// call, and a failing fixture yields a nil entry without aborting the rest.
func (s *PredictionService) PredictBatch(ctx context.Context, fixtureIDs []int64) (map[int64]*prediction.Prediction, error) {
	ctx, span := startUsecaseSpan(ctx, "PredictionService.PredictBatch")
	defer span.End()

	ids := dedupeIDs(fixtureIDs)
	if len(ids) == 0 {
		return map[int64]*prediction.Prediction{}, nil
	}
	if len(ids) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d: %w", len(ids), s.cfg.MaxBatchSize, ErrInvalidInput)
	}

	workerCount := s.cfg.BatchWorkers
	if workerCount > len(ids) {
		workerCount = len(ids)
	}
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make(chan extraction, len(ids))
	var workers sync.WaitGroup
	for _, fixtureID := range ids {
		fixtureID := fixtureID
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			set, usedFallback, extractErr := s.features.Extract(ctx, fixtureID)
			results <- extraction{
				fixtureID:    fixtureID,
				set:          set,
				usedFallback: usedFallback,
				err:          extractErr,
			}
		}); err != nil {
			workers.Done()
			results <- extraction{fixtureID: fixtureID, err: fmt.Errorf("submit extraction to worker pool: %w", err)}
		}
	}
	workers.Wait()
	close(results)

	out := make(map[int64]*prediction.Prediction, len(ids))
	extracted := make([]extraction, 0, len(ids))
	for row := range results {
		if row.err != nil {
			s.logger.WarnContext(ctx, "batch fixture skipped", "fixture_id", row.fixtureID, "error", row.err)
			out[row.fixtureID] = nil
			continue
		}
		extracted = append(extracted, row)
	}
	sort.SliceStable(extracted, func(i, j int) bool {
		return extracted[i].fixtureID < extracted[j].fixtureID
	})

	// One grouped inference call amortizes the per-request overhead of the
	// model service across the whole batch.
	modelOutputs := s.batchModelOutputs(ctx, extracted)

	for _, row := range extracted {
		var pred prediction.Prediction
		if output, ok := modelOutputs[row.fixtureID]; ok {
			pred = s.fromModelOutput(row.set, output)
		} else {
			pred = s.fromRules(row.set)
		}
		s.persist(ctx, &pred, row.usedFallback)
		stored := pred
		out[row.fixtureID] = &stored
	}
	return out, nil
}

type extraction struct {
	fixtureID    int64
	set          features.FeatureSet
	usedFallback bool
	err          error
}

// batchModelOutputs runs one grouped inference call for all extracted
// fixtures. Any failure returns an empty map and every fixture takes the
// rule path instead.
func (s *PredictionService) batchModelOutputs(ctx context.Context, extracted []extraction) map[int64]ModelOutput {
	if !s.cfg.MLEnabled || s.model == nil || len(extracted) == 0 {
		return nil
	}

	inputs := make([]ModelInput, 0, len(extracted))
	for _, row := range extracted {
		inputs = append(inputs, ModelInput{FixtureID: row.fixtureID, Features: row.set})
	}

	mlCtx, cancel := context.WithTimeout(ctx, s.cfg.MLTimeout)
	defer cancel()
	outputs, err := s.model.PredictBatch(mlCtx, inputs)
	if err != nil {
		s.logger.WarnContext(ctx, "batched model call failed, using rule fallback", "batch_size", len(inputs), "error", err)
		return nil
	}

	byFixture := make(map[int64]ModelOutput, len(outputs))
	for _, output := range outputs {
		byFixture[output.FixtureID] = output
	}
	return byFixture
}

func (s *PredictionService) predictFromFeatures(ctx context.Context, set features.FeatureSet) prediction.Prediction {
	if s.cfg.MLEnabled && s.model != nil {
		mlCtx, cancel := context.WithTimeout(ctx, s.cfg.MLTimeout)
		output, err := s.model.Predict(mlCtx, ModelInput{FixtureID: set.FixtureID, Features: set})
		cancel()
		if err == nil {
			return s.fromModelOutput(set, output)
		}
		s.logger.WarnContext(ctx, "model path failed, using rule fallback", "fixture_id", set.FixtureID, "error", err)
	}
	return s.fromRules(set)
}

// fromModelOutput calibrates raw model percentages with the configured
// temperature and assembles the prediction.
func (s *PredictionService) fromModelOutput(set features.FeatureSet, output ModelOutput) prediction.Prediction {
	raw := prediction.Probabilities{Home: output.Home, Draw: output.Draw, Away: output.Away}
	if s.cfg.Temperature != 1 {
		raw = temper(raw, s.cfg.Temperature)
	}

	xg := prediction.ExpectedGoals{
		Home: round2(output.ExpectedHome),
		Away: round2(output.ExpectedAway),
	}
	if xg.Home <= 0 {
		xg.Home = round2(set.Home.ExpectedGoals)
	}
	if xg.Away <= 0 {
		xg.Away = round2(set.Away.ExpectedGoals)
	}

	return s.assemble(set, raw, xg, prediction.SourceML)
}

// fromRules blends the feature signals into outcome probabilities with the
// heuristic weights. Inputs are clipped before normalization so one
// runaway signal cannot produce a negative share.
func (s *PredictionService) fromRules(set features.FeatureSet) prediction.Prediction {
	w := s.weights
	home := w.baseHome
	away := w.baseAway

	formDiff := set.Home.FormScore - set.Away.FormScore
	home += formDiff * w.formCoeff
	away -= formDiff * w.formCoeff

	xgDiff := set.Home.ExpectedGoals - set.Away.ExpectedGoals
	xgAdj := clamp(xgDiff*w.xgCoeff, -w.xgCap, w.xgCap)
	home += xgAdj
	away -= xgAdj

	momentumDiff := set.Home.Momentum - set.Away.Momentum
	home += momentumDiff * w.momentumCoeff
	away -= momentumDiff * w.momentumCoeff

	home += set.Home.InjuryImpact
	away += set.Away.InjuryImpact

	home += set.VenueAdvantage * w.venueCoeff

	if set.MarketSignal != nil {
		home = home*(1-w.marketBlend) + *set.MarketSignal*w.marketBlend
	}

	home = clamp(home, 0.05, 0.85)
	away = clamp(away, 0.05, 0.85)
	draw := clamp(1-home-away, 0.08, w.baseDraw+0.13)

	raw := prediction.Probabilities{Home: home * 100, Draw: draw * 100, Away: away * 100}

	xg := prediction.ExpectedGoals{
		Home: round2(set.Home.ExpectedGoals),
		Away: round2(set.Away.ExpectedGoals),
	}
	if set.WeatherPenalty != nil {
		xg.Home = round2(math.Max(0.2, xg.Home*(1-*set.WeatherPenalty)))
		xg.Away = round2(math.Max(0.2, xg.Away*(1-*set.WeatherPenalty)))
	}

	return s.assemble(set, raw, xg, prediction.SourceRuleFallback)
}

func (s *PredictionService) assemble(set features.FeatureSet, raw prediction.Probabilities, xg prediction.ExpectedGoals, source string) prediction.Prediction {
	probs := normalize(raw)
	outcome, margin := probs.Top()

	now := s.now().UTC()
	return prediction.Prediction{
		FixtureID:     set.FixtureID,
		Probabilities: probs,
		ExpectedGoals: xg,
		Outcome:       outcome,
		Confidence:    confidenceTier(margin),
		ModelSource:   source,
		Factors:       topFactors(set, s.weights),
		Markets:       deriveMarkets(xg),
		DataQuality:   set.DataQuality,
		CreatedAt:     now,
		StaleAfter:    now.Add(s.cfg.PredictionTTL),
	}
}

func (s *PredictionService) persist(ctx context.Context, pred *prediction.Prediction, usedFallback bool) {
	if usedFallback && pred.ModelSource == prediction.SourceML {
		// Keep the source honest: the model saw degraded inputs.
		pred.DataQuality = math.Min(pred.DataQuality, 0.8)
	}

	if err := s.predictions.Upsert(ctx, *pred); err != nil {
		s.logger.WarnContext(ctx, "persist prediction failed", "fixture_id", pred.FixtureID, "error", err)
	}
}

// normalize scales probabilities so they sum to exactly 100, resetting
// degenerate inputs (NaN, infinite, non-positive mass) to the neutral
// prior first.
func normalize(raw prediction.Probabilities) prediction.Probabilities {
	if isDegenerate(raw) {
		raw = neutralPrior
	}

	sum := raw.Sum()
	scaled := prediction.Probabilities{
		Home: round2(raw.Home / sum * 100),
		Draw: round2(raw.Draw / sum * 100),
		Away: round2(raw.Away / sum * 100),
	}
	// Rounding drift lands on the largest share so the invariant holds.
	drift := round2(100 - scaled.Sum())
	switch top, _ := scaled.Top(); top {
	case prediction.OutcomeDraw:
		scaled.Draw = round2(scaled.Draw + drift)
	case prediction.OutcomeAway:
		scaled.Away = round2(scaled.Away + drift)
	default:
		scaled.Home = round2(scaled.Home + drift)
	}
	return scaled
}

func isDegenerate(p prediction.Probabilities) bool {
	for _, v := range []float64{p.Home, p.Draw, p.Away} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return true
		}
	}
	return p.Sum() <= 0
}

// temper sharpens (t < 1) or flattens (t > 1) raw model percentages.
func temper(p prediction.Probabilities, temperature float64) prediction.Probabilities {
	if isDegenerate(p) {
		return p
	}
	exp := 1 / temperature
	return prediction.Probabilities{
		Home: math.Pow(p.Home/100, exp) * 100,
		Draw: math.Pow(p.Draw/100, exp) * 100,
		Away: math.Pow(p.Away/100, exp) * 100,
	}
}

func confidenceTier(margin float64) string {
	switch {
	case margin > 20:
		return prediction.ConfidenceHigh
	case margin > 10:
		return prediction.ConfidenceMedium
	default:
		return prediction.ConfidenceLow
	}
}

// topFactors ranks the explanatory signals by absolute adjustment and
// keeps at most five.
func topFactors(set features.FeatureSet, w ruleWeights) []prediction.Factor {
	factors := []prediction.Factor{
		{
			Name:       "form_differential",
			Adjustment: round4((set.Home.FormScore - set.Away.FormScore) * w.formCoeff),
			Detail:     fmt.Sprintf("home form %.0f vs away form %.0f", set.Home.FormScore, set.Away.FormScore),
		},
		{
			Name:       "expected_goals_edge",
			Adjustment: round4(clamp((set.Home.ExpectedGoals-set.Away.ExpectedGoals)*w.xgCoeff, -w.xgCap, w.xgCap)),
			Detail:     fmt.Sprintf("xG %.2f vs %.2f", set.Home.ExpectedGoals, set.Away.ExpectedGoals),
		},
		{
			Name:       "venue_advantage",
			Adjustment: round4(set.VenueAdvantage * w.venueCoeff),
		},
		{
			Name:       "momentum",
			Adjustment: round4((set.Home.Momentum - set.Away.Momentum) * w.momentumCoeff),
		},
	}
	if set.Home.InjuryImpact != 0 {
		factors = append(factors, prediction.Factor{
			Name:       "home_injuries",
			Adjustment: round4(set.Home.InjuryImpact),
		})
	}
	if set.Away.InjuryImpact != 0 {
		factors = append(factors, prediction.Factor{
			Name:       "away_injuries",
			Adjustment: round4(set.Away.InjuryImpact),
		})
	}
	if set.MarketSignal != nil {
		factors = append(factors, prediction.Factor{
			Name:       "market_signal",
			Adjustment: round4((*set.MarketSignal - 0.33) * w.marketBlend),
			Detail:     fmt.Sprintf("implied home win %.0f%%", *set.MarketSignal*100),
		})
	}
	if set.HeadToHead.Meetings > 0 {
		edge := float64(set.HeadToHead.HomeWins-set.HeadToHead.AwayWins) / float64(set.HeadToHead.Meetings)
		factors = append(factors, prediction.Factor{
			Name:       "head_to_head",
			Adjustment: round4(edge * 0.02),
			Detail:     fmt.Sprintf("%d-%d-%d over %d meetings", set.HeadToHead.HomeWins, set.HeadToHead.Draws, set.HeadToHead.AwayWins, set.HeadToHead.Meetings),
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return math.Abs(factors[i].Adjustment) > math.Abs(factors[j].Adjustment)
	})
	if len(factors) > 5 {
		factors = factors[:5]
	}
	return factors
}

// deriveMarkets computes Poisson-based goal markets from expected goals.
func deriveMarkets(xg prediction.ExpectedGoals) prediction.Markets {
	lambda := xg.Home + xg.Away
	// P(total goals >= 3) under Poisson(lambda).
	pUnder := math.Exp(-lambda) * (1 + lambda + lambda*lambda/2)
	over := clamp(1-pUnder, 0, 1)

	btts := (1 - math.Exp(-xg.Home)) * (1 - math.Exp(-xg.Away))

	return prediction.Markets{
		Over25:        round2(over * 100),
		Under25:       round2((1 - over) * 100),
		BothTeamScore: round2(clamp(btts, 0, 1) * 100),
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
