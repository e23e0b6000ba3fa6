package ingestion

import "time"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
)

// Event is one append-only audit record of a sync cycle or a degraded
// upstream fetch.
type Event struct {
	ID             string            `json:"id"`
	Source         string            `json:"source"`
	Scope          string            `json:"scope"`
	Status         string            `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	DurationMs     int64             `json:"duration_ms"`
	RecordsWritten int               `json:"records_written"`
	UsedFallback   bool              `json:"used_fallback"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
