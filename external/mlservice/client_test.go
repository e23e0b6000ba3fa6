package mlservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sabiscore/predictor/internal/domain/features"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
)

func sampleInput(fixtureID int64) usecase.ModelInput {
	return usecase.ModelInput{
		FixtureID: fixtureID,
		Features: features.FeatureSet{
			FixtureID:      fixtureID,
			Home:           features.SideFeatures{FormScore: 62, ExpectedGoals: 1.6, SampleSize: 8},
			Away:           features.SideFeatures{FormScore: 48, ExpectedGoals: 1.1, SampleSize: 8},
			VenueAdvantage: 0.12,
			DataQuality:    0.9,
		},
	}
}

func TestPredict_ParsesServiceResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"fixture_id":101,"home":48.2,"draw":26.1,"away":25.7,"expected_home":1.7,"expected_away":1.0}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second})

	out, err := client.Predict(context.Background(), sampleInput(101))
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if out.FixtureID != 101 || out.Home != 48.2 || out.ExpectedAway != 1.0 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestPredict_RejectsInvalidModelOutput(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fixture_id":101,"home":0,"draw":0,"away":0}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second})

	if _, err := client.Predict(context.Background(), sampleInput(101)); err == nil {
		t.Fatalf("expected an error for all-zero outcome mass")
	}
}

func TestPredictBatch_DiscardsInvalidItems(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict/batch" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"predictions":[
			{"fixture_id":1,"home":45,"draw":28,"away":27,"expected_home":1.4,"expected_away":1.1},
			{"fixture_id":2,"home":-3,"draw":28,"away":27,"expected_home":1.4,"expected_away":1.1}
		]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second})

	outputs, err := client.PredictBatch(context.Background(), []usecase.ModelInput{sampleInput(1), sampleInput(2)})
	if err != nil {
		t.Fatalf("PredictBatch returned error: %v", err)
	}
	if len(outputs) != 1 || outputs[0].FixtureID != 1 {
		t.Fatalf("expected only the valid item, got %+v", outputs)
	}
}

func TestPredict_ServerErrorsTripBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		HalfOpenMaxReq:   1,
	})
	client := NewClient(ClientConfig{BaseURL: server.URL, Timeout: time.Second, Breakers: registry})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.Predict(ctx, sampleInput(1)); err == nil {
			t.Fatalf("expected error on attempt %d", i+1)
		}
	}

	before := calls.Load()
	if _, err := client.Predict(ctx, sampleInput(1)); err == nil {
		t.Fatalf("expected breaker rejection")
	}
	if calls.Load() != before {
		t.Fatalf("expected no upstream call while breaker is open")
	}
	if state := registry.For(UpstreamID).State(); state != resilience.CircuitStateOpen {
		t.Fatalf("expected open breaker, got %s", state)
	}
}

func TestPredict_MissingBaseURLFailsFast(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{})
	_, err := client.Predict(context.Background(), sampleInput(1))
	if err == nil {
		t.Fatalf("expected configuration error")
	}
}
