package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalUsesPersistedFieldNames(t *testing.T) {
	task := Task{ID: "t1", Group: "lane-1", Title: "Title", StartTime: 1000, EndTime: 5000}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	for _, field := range []string{"\"id\":", "\"group\":", "\"title\":", "\"start_time\":1000", "\"end_time\":5000"} {
		if !strings.Contains(string(payload), field) {
			t.Fatalf("expected %s in payload, got %s", field, payload)
		}
	}
	if strings.Contains(string(payload), "color") {
		t.Fatalf("expected empty color to be omitted, got %s", payload)
	}
}

func TestTaskPatchApply(t *testing.T) {
	task := Task{ID: "t1", Group: "lane-1", Title: "old", StartTime: 0, EndTime: 100}

	title := "new"
	color := "#fff"
	TaskPatch{Title: &title, Color: &color}.Apply(&task)

	if task.Title != "new" || task.Color != "#fff" {
		t.Fatalf("patch not applied: %+v", task)
	}
	if task.ID != "t1" || task.Group != "lane-1" || task.StartTime != 0 || task.EndTime != 100 {
		t.Fatalf("untouched fields changed: %+v", task)
	}
}

func TestSortLanesKeepsPlaceholderLast(t *testing.T) {
	lanes := []Lane{
		{ID: "lane-2", Title: "b"},
		{ID: PlaceholderLaneID, Title: "+"},
		{ID: "lane-1", Title: "a"},
	}

	SortLanes(lanes)

	if !lanes[len(lanes)-1].IsPlaceholder() {
		t.Fatalf("placeholder not last: %+v", lanes)
	}
	if lanes[0].ID != "lane-2" || lanes[1].ID != "lane-1" {
		t.Fatalf("relative order of real lanes changed: %+v", lanes)
	}
}
