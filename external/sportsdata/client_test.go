package sportsdata

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/platform/cache"
	"github.com/sabiscore/predictor/internal/platform/resilience"
	"github.com/sabiscore/predictor/internal/usecase"
)

type recordingEventRepo struct {
	mu     sync.Mutex
	events []ingestion.Event
}

func (r *recordingEventRepo) Append(_ context.Context, event ingestion.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEventRepo) ListRecent(_ context.Context, limit int) ([]ingestion.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]ingestion.Event, limit)
	copy(out, r.events[len(r.events)-limit:])
	return out, nil
}

func (r *recordingEventRepo) all() []ingestion.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ingestion.Event(nil), r.events...)
}

func newTestClient(t *testing.T, serverURL string, events ingestion.Repository) *Client {
	t.Helper()

	store := cache.NewStore(0)
	t.Cleanup(store.Close)

	return NewClient(ClientConfig{
		BaseURL:     serverURL,
		Token:       "secret-token",
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		Breakers:    resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig()),
		Cache:       store,
		Events:      events,
	})
}

func TestRequest_RateLimitIsNeverRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limit exceeded"}`))
	}))
	defer server.Close()

	events := &recordingEventRepo{}
	client := newTestClient(t, server.URL, events)

	payload, meta, err := client.Request(context.Background(), "fixtures/upcoming", map[string]string{"league": "39"})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 upstream call for a 429, got %d", got)
	}
	if meta.Source != usecase.PayloadSourceSynthetic {
		t.Fatalf("expected synthetic payload, got source %q", meta.Source)
	}
	if !meta.UsedFallback {
		t.Fatalf("expected UsedFallback to be set")
	}
	if len(payload) == 0 {
		t.Fatalf("expected a non-empty synthetic payload")
	}

	recorded := events.all()
	if len(recorded) != 1 {
		t.Fatalf("expected 1 fallback event, got %d", len(recorded))
	}
	if !recorded[0].UsedFallback || recorded[0].Status != ingestion.StatusDegraded {
		t.Fatalf("unexpected fallback event: %+v", recorded[0])
	}
}

func TestRequest_TransientErrorIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	_, meta, err := client.Request(context.Background(), "fixtures/upcoming", map[string]string{"league": "39"})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if meta.Source != usecase.PayloadSourceNetwork {
		t.Fatalf("expected network payload after retry, got %q", meta.Source)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", got)
	}
}

func TestRequest_FreshCacheSkipsNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	ctx := context.Background()
	if _, _, err := client.Request(ctx, "teams/42", nil); err != nil {
		t.Fatalf("first Request returned error: %v", err)
	}
	_, meta, err := client.Request(ctx, "teams/42", nil)
	if err != nil {
		t.Fatalf("second Request returned error: %v", err)
	}
	if meta.Source != usecase.PayloadSourceCache {
		t.Fatalf("expected cache hit, got %q", meta.Source)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestRequest_StaleCacheServedWhenUpstreamFails(t *testing.T) {
	t.Parallel()

	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":7,"league_id":39,"name":"Rovers 7"}}`))
	}))
	defer server.Close()

	events := &recordingEventRepo{}
	client := newTestClient(t, server.URL, events)

	ctx := context.Background()
	payload, _, err := client.Request(ctx, "teams/7", nil)
	if err != nil {
		t.Fatalf("warm-up Request returned error: %v", err)
	}

	// Re-store with a short TTL and wait past it but well inside the
	// hard-expire window so the entry reads back stale, not missing.
	key := requestKey("teams/7", nil)
	client.cache.Put(ctx, key, payload, 100*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	failing.Store(true)

	stale, meta, err := client.Request(ctx, "teams/7", nil)
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if meta.Source != usecase.PayloadSourceStaleCache {
		t.Fatalf("expected stale cache payload, got %q", meta.Source)
	}
	if !meta.UsedFallback {
		t.Fatalf("expected UsedFallback to be set")
	}
	if !bytes.Equal(stale, payload) {
		t.Fatalf("stale payload does not match original")
	}
	if recorded := events.all(); len(recorded) != 1 || recorded[0].Metadata["payload_source"] != usecase.PayloadSourceStaleCache {
		t.Fatalf("unexpected fallback events: %+v", recorded)
	}
}

func TestRequest_OpenBreakerShortCircuitsNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	breaker := client.breakers.For(UpstreamID)
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	_, meta, err := client.Request(context.Background(), "fixtures/upcoming", map[string]string{"league": "39"})
	if err != nil {
		t.Fatalf("Request returned error: %v", err)
	}
	if meta.Source != usecase.PayloadSourceSynthetic {
		t.Fatalf("expected synthetic payload behind an open breaker, got %q", meta.Source)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no upstream calls while open, got %d", got)
	}
}

func TestRequest_RedactsTokenInURLs(t *testing.T) {
	t.Parallel()

	redacted := redactAPIURL("https://api.example/v3/fixtures/upcoming?api_token=secret-token&league=39")
	if want := "https://api.example/v3/fixtures/upcoming?api_token=REDACTED&league=39"; redacted != want {
		t.Fatalf("redactAPIURL = %q, want %q", redacted, want)
	}

	sanitized := sanitizeSensitiveText("dial failed for api_token=secret-token host", "secret-token")
	if want := "dial failed for api_token=REDACTED host"; sanitized != want {
		t.Fatalf("sanitizeSensitiveText = %q, want %q", sanitized, want)
	}
}

func TestFetchUpcomingFixtures_SkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	body := `{"data":[
		{"id":10,"league_id":39,"home_team":{"id":1,"name":"Rovers 1"},"away_team":{"id":2,"name":"City 2"},"kickoff_at":"2026-09-05T15:00:00Z","status":"SCHEDULED"},
		{"id":11,"league_id":39,"home_team":{"id":0},"away_team":{"id":4,"name":"United 4"},"kickoff_at":"2026-09-05T15:00:00Z","status":"SCHEDULED"},
		{"id":12,"league_id":39,"home_team":{"id":5,"name":"Town 5"},"away_team":{"id":6,"name":"Albion 6"},"kickoff_at":"not-a-time","status":"SCHEDULED"}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	fixtures, _, err := client.FetchUpcomingFixtures(context.Background(), 39, 5)
	if err != nil {
		t.Fatalf("FetchUpcomingFixtures returned error: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected 1 well-formed fixture, got %d", len(fixtures))
	}
	if fixtures[0].ExternalID != 10 || fixtures[0].HomeTeamName != "Rovers 1" {
		t.Fatalf("unexpected fixture: %+v", fixtures[0])
	}
}

func TestTTLFor_Tiers(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{
		TTLLive:      30 * time.Second,
		TTLVolatile:  30 * time.Minute,
		TTLReference: 24 * time.Hour,
		TTLOverrides: map[string]time.Duration{"weather": 10 * time.Minute},
		Cache:        cache.NewStore(0),
	})

	cases := []struct {
		endpoint string
		want     time.Duration
	}{
		{"fixtures/123/odds", 30 * time.Second},
		{"fixtures/upcoming", 30 * time.Minute},
		{"teams/7/results", 30 * time.Minute},
		{"teams/7/injuries", 30 * time.Minute},
		{"teams/7", 24 * time.Hour},
		{"h2h/7/9", 24 * time.Hour},
		{"fixtures/123/weather", 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := client.ttlFor(tc.endpoint); got != tc.want {
			t.Fatalf("ttlFor(%q) = %v, want %v", tc.endpoint, got, tc.want)
		}
	}
}

func TestFetchFixture_SyntheticRangeServedWithoutNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	events := &recordingEventRepo{}
	client := newTestClient(t, server.URL, events)

	fixtureID := syntheticIDFloor + 39042
	fetched, meta, err := client.FetchFixture(context.Background(), fixtureID)
	if err != nil {
		t.Fatalf("FetchFixture returned error: %v", err)
	}
	if fetched.ExternalID != fixtureID {
		t.Fatalf("fixture id = %d, want %d", fetched.ExternalID, fixtureID)
	}
	if meta.Source != usecase.PayloadSourceSynthetic || !meta.UsedFallback {
		t.Fatalf("unexpected meta for synthetic-range fixture: %+v", meta)
	}
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no upstream calls for a synthetic-range id, got %d", got)
	}
	if recorded := events.all(); len(recorded) != 0 {
		t.Fatalf("expected no degradation events, got %d", len(recorded))
	}
}

func TestFetchFixture_UpstreamNotFoundSurfaces(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"fixture does not exist"}`))
	}))
	defer server.Close()

	events := &recordingEventRepo{}
	client := newTestClient(t, server.URL, events)

	_, _, err := client.FetchFixture(context.Background(), 55555)
	if !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown real id, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 upstream call for a 404, got %d", got)
	}
	if recorded := events.all(); len(recorded) != 0 {
		t.Fatalf("a 404 must not record a fallback event, got %d", len(recorded))
	}
}

func TestFetchFixture_EmptyEnvelopeIsNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	_, _, err := client.FetchFixture(context.Background(), 55555)
	if !errors.Is(err, usecase.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an empty envelope, got %v", err)
	}
}
