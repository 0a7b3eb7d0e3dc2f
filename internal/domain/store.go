package domain

import "context"

// ComparisonRunStore keeps a write-mostly history of compare calls.
type ComparisonRunStore interface {
	Insert(ctx context.Context, run ComparisonRun) error
	ListRecent(ctx context.Context, limit int) ([]ComparisonRun, error)
}
