package prediction

import "context"

// Repository keeps one active prediction per fixture. Upsert must verify
// the referenced fixture exists before writing.
type Repository interface {
	Get(ctx context.Context, fixtureID int64) (Prediction, bool, error)
	Upsert(ctx context.Context, item Prediction) error
	ListRecent(ctx context.Context, limit int) ([]Prediction, error)
}
