package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThresholdFailures(t *testing.T) {
	b := NewCircuitBreaker(5, 60*time.Second, 1)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected allow below threshold: %v", err)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected second half-open probe rejected, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker(2, 5*time.Second, 1)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open, got %s", state)
	}

	now = now.Add(6 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	b.RecordSuccess()

	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}
	snap := b.Snapshot()
	if snap.ConsecutiveFailures != 0 {
		t.Fatalf("expected failure count reset, got %d", snap.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Second, 1)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}

	b.RecordFailure()
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected reopen after failed probe, got %s", state)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error after reopen, got %v", err)
	}
}

func TestCircuitBreaker_SnapshotExposesOpenUntil(t *testing.T) {
	b := NewCircuitBreaker(1, 30*time.Second, 1)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	snap := b.Snapshot()
	if snap.State != CircuitStateOpen {
		t.Fatalf("expected open snapshot, got %s", snap.State)
	}
	if snap.OpenUntil == nil || !snap.OpenUntil.Equal(now.Add(30*time.Second)) {
		t.Fatalf("unexpected open_until: %v", snap.OpenUntil)
	}
	if snap.LastFailureAt == nil || !snap.LastFailureAt.Equal(now) {
		t.Fatalf("unexpected last_failure_at: %v", snap.LastFailureAt)
	}
}

func TestRegistry_IsolatesUpstreams(t *testing.T) {
	r := NewRegistry(CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, OpenTimeout: time.Minute, HalfOpenMaxReq: 1})

	r.For("sportsdata").RecordFailure()

	if err := r.For("sportsdata").Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected sportsdata breaker open, got %v", err)
	}
	if err := r.For("mlservice").Allow(); err != nil {
		t.Fatalf("expected mlservice breaker untouched, got %v", err)
	}
	if r.For("sportsdata") != r.For("sportsdata") {
		t.Fatal("expected one breaker instance per upstream")
	}

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps["sportsdata"].State != CircuitStateOpen {
		t.Fatalf("expected open snapshot for sportsdata, got %s", snaps["sportsdata"].State)
	}
}
