package domain

// Interval is a half-open time range [Start, End) in milliseconds since epoch.
type Interval struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Edge names the task boundary a resize gesture grabbed.
type Edge string

const (
	EdgeLeft  Edge = "left"
	EdgeRight Edge = "right"
)

// Overlaps reports whether two half-open intervals intersect. Intervals that
// only touch at a boundary do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// HasCollision reports whether the candidate placement overlaps any other
// task in the same lane. The candidate's own id is skipped so a task never
// collides with itself.
func HasCollision(candidate Task, tasks []Task) bool {
	for i := range tasks {
		if tasks[i].ID == candidate.ID || tasks[i].Group != candidate.Group {
			continue
		}
		if Overlaps(candidate.Interval(), tasks[i].Interval()) {
			return true
		}
	}
	return false
}

const msPerMinute = 60_000

// SnapToGrid rounds a timestamp to the nearest multiple of the snap
// granularity in minutes, half away from zero. Granularities below one
// minute leave the timestamp untouched.
func SnapToGrid(ts int64, granularityMinutes int) int64 {
	if granularityMinutes <= 0 {
		return ts
	}
	step := int64(granularityMinutes) * msPerMinute
	if ts >= 0 {
		return ((ts + step/2) / step) * step
	}
	return -(((-ts)+step/2)/step) * step
}
