package team

import "context"

// Repository stores teams keyed by their upstream id.
type Repository interface {
	Get(ctx context.Context, id int64) (Team, bool, error)
	Upsert(ctx context.Context, item Team) error
}
