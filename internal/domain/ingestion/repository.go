package ingestion

import "context"

// Repository is an append-only audit log, read newest first.
type Repository interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
