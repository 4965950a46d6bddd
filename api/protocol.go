package api

import "timeline-api/domain"

const gesturePayloadMaxSize = 64 * 1024 // 64 KiB

// Gesture kinds accepted by POST /api/gestures.
const (
	gestureDragEnd   = "drag-end"
	gestureResizeEnd = "resize-end"
	gestureAddTask   = "add-task"
)

// gestureRequest is one terminal gesture commit from the rendering layer.
// Intermediate drag positions never reach the server.
type gestureRequest struct {
	Type           string       `json:"type"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	TaskID         string       `json:"taskId,omitempty"`
	StartTime      int64        `json:"startTime,omitempty"`
	LaneIndex      int          `json:"laneIndex,omitempty"`
	BoundaryTime   int64        `json:"boundaryTime,omitempty"`
	Edge           domain.Edge  `json:"edge,omitempty"`
	Task           *domain.Task `json:"task,omitempty"`
}

// gestureResult reports the outcome of one gesture. A rejected gesture is a
// normal outcome, not an error.
type gestureResult struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Applied        bool   `json:"applied"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

// POST /api/gestures response body
type gesturesResponse struct {
	Results []gestureResult `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type timelineResponse struct {
	Lanes []domain.Lane `json:"lanes"`
	Tasks []domain.Task `json:"tasks"`
}

type createLaneRequest struct {
	Title string `json:"title"`
}

type createLaneResponse struct {
	ID string `json:"id"`
}

type renameLaneRequest struct {
	Title string `json:"title"`
}
