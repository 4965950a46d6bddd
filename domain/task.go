package domain

import "time"

// PlaceholderLaneID identifies the sentinel lane used as the "create a new
// lane here" drag target. It never contains tasks and always sorts last.
const PlaceholderLaneID = "__new_lane__"

// Lane is a horizontal track on the timeline. Only tasks within the same
// lane can collide.
type Lane struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// IsPlaceholder reports whether the lane is the new-lane sentinel.
func (l Lane) IsPlaceholder() bool { return l.ID == PlaceholderLaneID }

// Task is a single time-boxed item on the timeline. Times are milliseconds
// since epoch and the occupied interval is half-open: [StartTime, EndTime).
type Task struct {
	ID        string `json:"id"`
	Group     string `json:"group"`
	Title     string `json:"title"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Color     string `json:"color,omitempty"`
}

// Duration returns the task length in milliseconds.
func (t Task) Duration() int64 { return t.EndTime - t.StartTime }

// Interval returns the half-open time interval the task occupies.
func (t Task) Interval() Interval { return Interval{Start: t.StartTime, End: t.EndTime} }

// TaskPatch carries partial updates for the non-identity fields of a task.
// Nil fields are left untouched.
type TaskPatch struct {
	Group     *string `json:"group,omitempty"`
	Title     *string `json:"title,omitempty"`
	StartTime *int64  `json:"start_time,omitempty"`
	EndTime   *int64  `json:"end_time,omitempty"`
	Color     *string `json:"color,omitempty"`
}

// Apply merges the patch into the task.
func (p TaskPatch) Apply(t *Task) {
	if p.Group != nil {
		t.Group = *p.Group
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.StartTime != nil {
		t.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		t.EndTime = *p.EndTime
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
}

// SortLanes orders lanes so the placeholder sentinel is always last while
// preserving the relative order of real lanes.
func SortLanes(lanes []Lane) {
	for i := 0; i < len(lanes)-1; i++ {
		if lanes[i].IsPlaceholder() {
			lanes[i], lanes[i+1] = lanes[i+1], lanes[i]
		}
	}
}

// DefaultLanes returns the lane set used before anything has been saved.
func DefaultLanes() []Lane {
	return []Lane{
		{ID: "lane-1", Title: "Work"},
		{ID: "lane-2", Title: "Personal"},
		{ID: PlaceholderLaneID, Title: "+"},
	}
}

// DefaultTasks returns the sample tasks shown on first launch.
func DefaultTasks() []Task {
	start := time.Now().Truncate(time.Hour)
	return []Task{
		{
			ID:        "task-1",
			Group:     "lane-1",
			Title:     "Kickoff meeting",
			StartTime: start.UnixMilli(),
			EndTime:   start.Add(time.Hour).UnixMilli(),
			Color:     "#4f8df7",
		},
		{
			ID:        "task-2",
			Group:     "lane-2",
			Title:     "Groceries",
			StartTime: start.Add(2 * time.Hour).UnixMilli(),
			EndTime:   start.Add(3 * time.Hour).UnixMilli(),
		},
	}
}
