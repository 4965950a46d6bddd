package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"timeline-api/domain"
)

const edmInt64 = "Edm.Int64"

// laneMarkerRowKey distinguishes "lanes never saved" from "saved empty".
// The marker row is written on every lane save and never surfaced as a lane.
const laneMarkerRowKey = "!saved"

// Table persists board snapshots to Azure Table Storage, one row per task or
// lane with the board id as partition key. Saves optionally enqueue a change
// notification for downstream consumers.
type Table struct {
	taskTable   *aztables.Client
	laneTable   *aztables.Client
	changeQueue *azqueue.QueueClient
}

// NewTable creates a Table adapter from the given connection string. An empty
// changeQueue disables change notifications.
func NewTable(connStr, tasksTable, lanesTable, changeQueue string) (*Table, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	t := &Table{
		taskTable: svc.NewClient(tasksTable),
		laneTable: svc.NewClient(lanesTable),
	}
	if changeQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute * 5,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		t.changeQueue = cq
	}
	return t, nil
}

type taskEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	LaneID        string `json:"LaneId"`
	Color         string `json:"Color,omitempty"`
	StartTime     int64  `json:"StartTime,string"`
	StartTimeType string `json:"StartTime@odata.type"`
	EndTime       int64  `json:"EndTime,string"`
	EndTimeType   string `json:"EndTime@odata.type"`
}

type laneEntity struct {
	aztables.Entity
	Title string `json:"Title"`
}

type changeMessage struct {
	BoardID string `json:"boardId"`
	Kind    string `json:"kind"`
	Time    int64  `json:"time"`
}

// SaveTasks replaces the stored task snapshot for the board.
func (t *Table) SaveTasks(ctx context.Context, boardID string, tasks []domain.Task) error {
	existing, err := listRowKeys(ctx, t.taskTable, boardID)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		keep[task.ID] = struct{}{}
		ent := taskEntity{
			Entity:        aztables.Entity{PartitionKey: boardID, RowKey: task.ID},
			Title:         task.Title,
			LaneID:        task.Group,
			Color:         task.Color,
			StartTime:     task.StartTime,
			StartTimeType: edmInt64,
			EndTime:       task.EndTime,
			EndTimeType:   edmInt64,
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := t.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
			return err
		}
	}
	if err := deleteStaleRows(ctx, t.taskTable, boardID, existing, keep); err != nil {
		return err
	}
	return t.notify(ctx, boardID, "tasks")
}

// LoadTasks returns the stored task snapshot. Missing data and rows that no
// longer decode load as an empty collection.
func (t *Table) LoadTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := t.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				continue
			}
			tasks = append(tasks, domain.Task{
				ID:        ent.RowKey,
				Group:     ent.LaneID,
				Title:     ent.Title,
				StartTime: ent.StartTime,
				EndTime:   ent.EndTime,
				Color:     ent.Color,
			})
		}
	}
	return tasks, nil
}

// SaveLanes replaces the stored lane snapshot for the board and writes the
// marker row so later loads can tell an empty snapshot from no snapshot.
func (t *Table) SaveLanes(ctx context.Context, boardID string, lanes []domain.Lane) error {
	existing, err := listRowKeys(ctx, t.laneTable, boardID)
	if err != nil {
		return err
	}
	keep := map[string]struct{}{laneMarkerRowKey: {}}
	marker := laneEntity{Entity: aztables.Entity{PartitionKey: boardID, RowKey: laneMarkerRowKey}}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	if _, err := t.laneTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return err
	}
	for _, lane := range lanes {
		keep[lane.ID] = struct{}{}
		ent := laneEntity{
			Entity: aztables.Entity{PartitionKey: boardID, RowKey: lane.ID},
			Title:  lane.Title,
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := t.laneTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
			return err
		}
	}
	if err := deleteStaleRows(ctx, t.laneTable, boardID, existing, keep); err != nil {
		return err
	}
	return t.notify(ctx, boardID, "lanes")
}

// LoadLanes returns the stored lane snapshot, or nil when no snapshot was
// ever saved. Lane order follows row order with the placeholder moved last
// by the caller.
func (t *Table) LoadLanes(ctx context.Context, boardID string) ([]domain.Lane, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := t.laneTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var lanes []domain.Lane
	saved := false
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent laneEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				continue
			}
			if ent.RowKey == laneMarkerRowKey {
				saved = true
				continue
			}
			lanes = append(lanes, domain.Lane{ID: ent.RowKey, Title: ent.Title})
		}
	}
	if !saved && lanes == nil {
		return nil, nil
	}
	if lanes == nil {
		lanes = []domain.Lane{}
	}
	return lanes, nil
}

// ClearAll removes everything stored for the board.
func (t *Table) ClearAll(ctx context.Context, boardID string) error {
	for _, client := range []*aztables.Client{t.taskTable, t.laneTable} {
		keys, err := listRowKeys(ctx, client, boardID)
		if err != nil {
			return err
		}
		for _, rk := range keys {
			if _, err := client.DeleteEntity(ctx, boardID, rk, nil); err != nil {
				return err
			}
		}
	}
	return t.notify(ctx, boardID, "clear")
}

func (t *Table) notify(ctx context.Context, boardID, kind string) error {
	if t.changeQueue == nil {
		return nil
	}
	msg := changeMessage{BoardID: boardID, Kind: kind, Time: time.Now().UnixMilli()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = t.changeQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func listRowKeys(ctx context.Context, client *aztables.Client, boardID string) ([]string, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	sel := "PartitionKey,RowKey"
	pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	var keys []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent aztables.Entity
			if err := json.Unmarshal(raw, &ent); err != nil {
				continue
			}
			keys = append(keys, ent.RowKey)
		}
	}
	return keys, nil
}

func deleteStaleRows(ctx context.Context, client *aztables.Client, boardID string, existing []string, keep map[string]struct{}) error {
	for _, rk := range existing {
		if _, ok := keep[rk]; ok {
			continue
		}
		if _, err := client.DeleteEntity(ctx, boardID, rk, nil); err != nil {
			return err
		}
	}
	return nil
}
