package mlservice

import (
	"fmt"
	"math"

	"github.com/sabiscore/predictor/internal/domain/features"
	"github.com/sabiscore/predictor/internal/usecase"
)

// Inference wire shapes. Features travel with their domain json tags so the
// service and this client stay aligned on one schema.

type wireInput struct {
	FixtureID int64               `json:"fixture_id"`
	Features  features.FeatureSet `json:"features"`
}

type batchRequest struct {
	Inputs []wireInput `json:"inputs"`
}

type batchResponse struct {
	Predictions []predictionItem `json:"predictions"`
}

type predictionItem struct {
	FixtureID    int64   `json:"fixture_id"`
	Home         float64 `json:"home"`
	Draw         float64 `json:"draw"`
	Away         float64 `json:"away"`
	ExpectedHome float64 `json:"expected_home"`
	ExpectedAway float64 `json:"expected_away"`
}

func toWireInput(input usecase.ModelInput) wireInput {
	return wireInput{
		FixtureID: input.FixtureID,
		Features:  input.Features,
	}
}

func (p predictionItem) toOutput() (usecase.ModelOutput, error) {
	for name, value := range map[string]float64{
		"home": p.Home, "draw": p.Draw, "away": p.Away,
		"expected_home": p.ExpectedHome, "expected_away": p.ExpectedAway,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return usecase.ModelOutput{}, fmt.Errorf("model returned invalid %s value %v", name, value)
		}
	}
	if p.Home+p.Draw+p.Away <= 0 {
		return usecase.ModelOutput{}, fmt.Errorf("model returned all-zero outcome mass")
	}

	return usecase.ModelOutput{
		FixtureID:    p.FixtureID,
		Home:         p.Home,
		Draw:         p.Draw,
		Away:         p.Away,
		ExpectedHome: p.ExpectedHome,
		ExpectedAway: p.ExpectedAway,
	}, nil
}
