package api

import (
	"context"

	"timeline-api/domain"
)

// Board is the timeline state container handlers mutate. Mutations either
// apply fully or are rejected; rejections come back as booleans, never
// errors.
type Board interface {
	Lanes() []domain.Lane
	Tasks() []domain.Task
	SetAll(tasks []domain.Task)
	UpdateTaskFields(id string, patch domain.TaskPatch)
	MoveTask(id, laneID string, newStart int64) bool
	ResizeTask(id string, boundary int64, edge domain.Edge) bool
	CreateLane(title string) string
	RenameLane(laneID, title string)
}

// Boards resolves the board belonging to an authenticated subject. The
// resolver never fails: a board whose stored state cannot be loaded starts
// from defaults.
type Boards interface {
	Board(ctx context.Context, boardID string) Board
}

// Authenticator is implemented by types able to extract board owners from
// Authorization headers.
type Authenticator interface {
	SubjectFromAuthHeader(string) (string, error)
}

// Deduper suppresses re-delivery of gestures that were already applied.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, boardID, key string) (bool, error)
	// Remove deletes a previously added key so a corrected retry of a
	// rejected gesture is not blocked.
	Remove(ctx context.Context, boardID, key string) error
}
