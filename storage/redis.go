package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"timeline-api/domain"
)

// Redis stores board snapshots as JSON blobs in Redis. When a change channel
// is configured, every successful save publishes the board id so stream
// consumers can refresh without polling.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis creates a Redis adapter. An empty changeChannel disables change
// notifications.
func NewRedis(client *redis.Client, changeChannel string) *Redis {
	if client == nil {
		panic("storage.NewRedis: redis client is nil")
	}
	return &Redis{client: client, channel: changeChannel}
}

func tasksKey(boardID string) string { return "timeline:tasks:" + boardID }
func lanesKey(boardID string) string { return "timeline:lanes:" + boardID }

// SaveTasks writes the full task snapshot for the board.
func (r *Redis) SaveTasks(ctx context.Context, boardID string, tasks []domain.Task) error {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, tasksKey(boardID), data, 0).Err(); err != nil {
		return err
	}
	r.notify(ctx, boardID)
	return nil
}

// LoadTasks returns the stored task snapshot. Missing or corrupt data loads
// as an empty collection; corrupt payloads are dropped so the next load is
// clean.
func (r *Redis) LoadTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	data, err := r.client.Get(ctx, tasksKey(boardID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []domain.Task{}, nil
		}
		return nil, err
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = r.client.Del(ctx, tasksKey(boardID)).Err()
		return []domain.Task{}, nil
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// SaveLanes writes the full lane snapshot for the board.
func (r *Redis) SaveLanes(ctx context.Context, boardID string, lanes []domain.Lane) error {
	if lanes == nil {
		lanes = []domain.Lane{}
	}
	data, err := sonic.Marshal(lanes)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, lanesKey(boardID), data, 0).Err(); err != nil {
		return err
	}
	r.notify(ctx, boardID)
	return nil
}

// LoadLanes returns the stored lane snapshot, or nil when lanes were never
// saved. A saved-but-empty lane set loads as an empty non-nil slice.
func (r *Redis) LoadLanes(ctx context.Context, boardID string) ([]domain.Lane, error) {
	data, err := r.client.Get(ctx, lanesKey(boardID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	lanes := []domain.Lane{}
	if err := sonic.Unmarshal(data, &lanes); err != nil {
		_ = r.client.Del(ctx, lanesKey(boardID)).Err()
		return nil, nil
	}
	return lanes, nil
}

// ClearAll removes everything stored for the board.
func (r *Redis) ClearAll(ctx context.Context, boardID string) error {
	if err := r.client.Del(ctx, tasksKey(boardID), lanesKey(boardID)).Err(); err != nil {
		return err
	}
	r.notify(ctx, boardID)
	return nil
}

func (r *Redis) notify(ctx context.Context, boardID string) {
	if r.channel == "" {
		return
	}
	// Best effort; a missed notification only delays stream refresh.
	_ = r.client.Publish(ctx, r.channel, boardID).Err()
}
