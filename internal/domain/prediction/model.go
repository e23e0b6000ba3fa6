package prediction

import (
	"fmt"
	"math"
	"time"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	SourceML           = "ml"
	SourceRuleFallback = "rule-fallback"

	OutcomeHome = "home"
	OutcomeDraw = "draw"
	OutcomeAway = "away"
)

// SumTolerance is the allowed drift of the probability sum around 100.
const SumTolerance = 0.1

// Probabilities are percentages. Home+Draw+Away must stay within
// SumTolerance of 100.
type Probabilities struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

func (p Probabilities) Sum() float64 {
	return p.Home + p.Draw + p.Away
}

func (p Probabilities) Valid() bool {
	for _, v := range []float64{p.Home, p.Draw, p.Away} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return math.Abs(p.Sum()-100) <= SumTolerance
}

// Top returns the leading outcome and the margin over the runner-up.
func (p Probabilities) Top() (string, float64) {
	outcome := OutcomeHome
	top, second := p.Home, p.Draw
	if second > top {
		top, second = second, top
		outcome = OutcomeDraw
	}
	if p.Away > top {
		second = top
		top = p.Away
		outcome = OutcomeAway
	} else if p.Away > second {
		second = p.Away
	}
	return outcome, top - second
}

type ExpectedGoals struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// Factor is one explanatory signal behind a prediction, ranked by the
// absolute size of its adjustment.
type Factor struct {
	Name       string  `json:"name"`
	Adjustment float64 `json:"adjustment"`
	Detail     string  `json:"detail,omitempty"`
}

// Markets carries simple betting derivatives computed from expected goals.
type Markets struct {
	Over25        float64 `json:"over_2_5"`
	Under25       float64 `json:"under_2_5"`
	BothTeamScore float64 `json:"btts"`
}

// Prediction is the one active forecast for a fixture.
type Prediction struct {
	FixtureID     int64         `json:"fixture_id"`
	Probabilities Probabilities `json:"probabilities"`
	ExpectedGoals ExpectedGoals `json:"expected_goals"`
	Outcome       string        `json:"predicted_outcome"`
	Confidence    string        `json:"confidence"`
	ModelSource   string        `json:"model_source"`
	Factors       []Factor      `json:"key_factors,omitempty"`
	Markets       Markets       `json:"markets"`
	DataQuality   float64       `json:"data_quality"`
	CreatedAt     time.Time     `json:"created_at"`
	StaleAfter    time.Time     `json:"stale_after"`
}

func (p Prediction) IsStale(now time.Time) bool {
	return now.After(p.StaleAfter)
}

func (p Prediction) Validate() error {
	if p.FixtureID <= 0 {
		return fmt.Errorf("prediction fixture id must be > 0")
	}
	if !p.Probabilities.Valid() {
		return fmt.Errorf("prediction probabilities must sum to 100±%.1f, got %.2f", SumTolerance, p.Probabilities.Sum())
	}

	return nil
}
