package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"timeline-api/domain"
	"timeline-api/storage"
)

// Board owns the canonical lane and task collections for one timeline and
// mediates every structural mutation. Mutations either apply fully or are
// rejected with the state unchanged; business-rule rejections are signalled
// through boolean returns, never errors.
//
// Persistence is best effort: each accepted mutation hands a full snapshot
// to the writer and returns without waiting for the write.
type Board struct {
	id      string
	adapter storage.Adapter
	writer  *snapshotWriter
	logger  *log.Logger

	mu    sync.Mutex
	lanes []domain.Lane
	tasks []domain.Task
}

// New creates a board seeded with the default sample data.
func New(id string, adapter storage.Adapter, logger *log.Logger) *Board {
	if adapter == nil {
		panic("store.New: adapter is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Board{
		id:      id,
		adapter: adapter,
		writer:  newSnapshotWriter(id, adapter, logger),
		logger:  logger,
		lanes:   domain.DefaultLanes(),
		tasks:   domain.DefaultTasks(),
	}
}

// ID returns the board identifier.
func (b *Board) ID() string { return b.id }

// Lanes returns a copy of the lane collection in display order.
func (b *Board) Lanes() []domain.Lane {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Lane, len(b.lanes))
	copy(out, b.lanes)
	return out
}

// Tasks returns a copy of the task collection.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// SetAll unconditionally replaces the task collection. There is no collision
// check: this is the bulk load path and callers are responsible for handing
// over pre-validated data.
func (b *Board) SetAll(tasks []domain.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = make([]domain.Task, len(tasks))
	copy(b.tasks, tasks)
	b.persistLocked()
}

// UpdateTaskFields merges the patch into the task with the given id. Unknown
// ids are a no-op. The patch is applied without a collision check, so callers
// using it for time or lane edits must pre-validate.
func (b *Board) UpdateTaskFields(id string, patch domain.TaskPatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.taskIndexLocked(id)
	if idx < 0 {
		return
	}
	patch.Apply(&b.tasks[idx])
	b.persistLocked()
}

// MoveTask places the task at newStart in the given lane, preserving its
// duration. It reports false and leaves the state unchanged when the target
// is the placeholder lane, the id is unknown, or the placement collides.
func (b *Board) MoveTask(id, laneID string, newStart int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if laneID == domain.PlaceholderLaneID {
		return false
	}
	idx := b.taskIndexLocked(id)
	if idx < 0 {
		return false
	}
	candidate := b.tasks[idx]
	candidate.EndTime = newStart + candidate.Duration()
	candidate.StartTime = newStart
	candidate.Group = laneID
	if domain.HasCollision(candidate, b.tasks) {
		return false
	}
	b.tasks[idx] = candidate
	b.persistLocked()
	return true
}

// ResizeTask moves one boundary of the task to the given time. It reports
// false when the id is unknown, the proposed interval would be empty or
// inverted, or the new extent collides within the task's lane.
func (b *Board) ResizeTask(id string, boundary int64, edge domain.Edge) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.taskIndexLocked(id)
	if idx < 0 {
		return false
	}
	candidate := b.tasks[idx]
	switch edge {
	case domain.EdgeLeft:
		candidate.StartTime = boundary
	case domain.EdgeRight:
		candidate.EndTime = boundary
	default:
		return false
	}
	if candidate.EndTime <= candidate.StartTime {
		return false
	}
	if domain.HasCollision(candidate, b.tasks) {
		return false
	}
	b.tasks[idx] = candidate
	b.persistLocked()
	return true
}

// CreateLane appends a fresh lane ahead of the placeholder and returns its id
// synchronously so callers can immediately target it.
func (b *Board) CreateLane(title string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if title == "" {
		title = "New lane"
	}
	id := uuid.NewString()
	b.lanes = append(b.lanes, domain.Lane{ID: id, Title: title})
	domain.SortLanes(b.lanes)
	b.persistLocked()
	return id
}

// RenameLane updates a lane title. Renaming the placeholder or an unknown
// lane is a silent no-op.
func (b *Board) RenameLane(laneID, title string) {
	if laneID == domain.PlaceholderLaneID {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lanes {
		if b.lanes[i].ID == laneID {
			b.lanes[i].Title = title
			b.persistLocked()
			return
		}
	}
}

// LoadFromStorage replaces in-memory state with whatever the adapter holds.
// Stored tasks only replace the current collection when non-empty, and lanes
// only when they were ever saved, so a fresh board keeps its sample data.
// Safe to call repeatedly.
func (b *Board) LoadFromStorage(ctx context.Context) error {
	tasks, taskErr := b.adapter.LoadTasks(ctx, b.id)
	lanes, laneErr := b.adapter.LoadLanes(ctx, b.id)

	b.mu.Lock()
	if taskErr == nil && len(tasks) > 0 {
		b.tasks = tasks
	}
	if laneErr == nil && lanes != nil {
		domain.SortLanes(lanes)
		b.lanes = lanes
	}
	b.mu.Unlock()

	if taskErr != nil {
		return taskErr
	}
	return laneErr
}

// Persist schedules a snapshot write of the current state. It never blocks
// and write failures never affect the in-memory state.
func (b *Board) Persist() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persistLocked()
}

// Close flushes any pending snapshot and stops the writer.
func (b *Board) Close() {
	b.writer.Close()
}

func (b *Board) persistLocked() {
	lanes := make([]domain.Lane, len(b.lanes))
	copy(lanes, b.lanes)
	tasks := make([]domain.Task, len(b.tasks))
	copy(tasks, b.tasks)
	b.writer.Enqueue(snapshot{lanes: lanes, tasks: tasks})
}

func (b *Board) taskIndexLocked(id string) int {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
