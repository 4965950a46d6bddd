package api

import (
	"github.com/google/uuid"

	"timeline-api/domain"
)

// Gestures translates terminal UI gesture events into board mutations.
// Proposed times are snapped to the configured grid before validation, so
// drag and resize results stay aligned with the visual grid the client
// renders.
type Gestures struct {
	// SnapMinutes is the grid granularity; zero or negative disables
	// snapping.
	SnapMinutes int
}

// DragEnd commits a drag gesture. The lane index is resolved against the
// current lane ordering; an out-of-range index means the gesture raced a
// lane change and is silently ignored. Dropping on the placeholder lane
// creates a real lane first and moves the task into it.
func (g Gestures) DragEnd(board Board, taskID string, proposedStart int64, laneIndex int) bool {
	lanes := board.Lanes()
	if laneIndex < 0 || laneIndex >= len(lanes) {
		return false
	}
	laneID := lanes[laneIndex].ID
	if laneID == domain.PlaceholderLaneID {
		laneID = board.CreateLane("")
	}
	return board.MoveTask(taskID, laneID, domain.SnapToGrid(proposedStart, g.SnapMinutes))
}

// ResizeEnd commits a resize gesture.
func (g Gestures) ResizeEnd(board Board, taskID string, proposedBoundary int64, edge domain.Edge) bool {
	return board.ResizeTask(taskID, domain.SnapToGrid(proposedBoundary, g.SnapMinutes), edge)
}

// AddTask appends a fully formed task. The input is trusted: the upstream
// form validates title, duration and lane before submitting, so no collision
// check happens here.
func (g Gestures) AddTask(board Board, task domain.Task) bool {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	board.SetAll(append(board.Tasks(), task))
	return true
}

// Apply dispatches one gesture envelope. Unknown gesture kinds report false.
func (g Gestures) Apply(board Board, req gestureRequest) bool {
	switch req.Type {
	case gestureDragEnd:
		return g.DragEnd(board, req.TaskID, req.StartTime, req.LaneIndex)
	case gestureResizeEnd:
		return g.ResizeEnd(board, req.TaskID, req.BoundaryTime, req.Edge)
	case gestureAddTask:
		if req.Task == nil {
			return false
		}
		return g.AddTask(board, *req.Task)
	default:
		return false
	}
}
