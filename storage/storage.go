package storage

import (
	"context"

	"timeline-api/domain"
)

// Adapter persists timeline board snapshots to durable key-value storage.
//
// Loads never fail hard on missing or corrupt data: tasks load as an empty
// collection and lanes as nil. A nil lane slice means "never saved", which
// callers treat differently from a saved-but-empty lane set.
type Adapter interface {
	SaveTasks(ctx context.Context, boardID string, tasks []domain.Task) error
	LoadTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	SaveLanes(ctx context.Context, boardID string, lanes []domain.Lane) error
	LoadLanes(ctx context.Context, boardID string) ([]domain.Lane, error)
	ClearAll(ctx context.Context, boardID string) error
}
