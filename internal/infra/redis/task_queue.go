package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
)

const taskQueueKey = "pipeline:tasks"

// popDueScript atomically takes the earliest task whose ready-at score has
// passed, so concurrent workers never receive the same task twice.
var popDueScript = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #items == 0 then
	return false
end
redis.call("ZREM", KEYS[1], items[1])
return items[1]
`)

// TaskQueue implements queue.Queue on a Redis sorted set scored by ready-at
// time in unix milliseconds. Delayed tasks simply carry a future score.
type TaskQueue struct {
	rdb *redis.Client
}

// NewTaskQueue creates a Redis-backed task queue.
func NewTaskQueue(client *Client) *TaskQueue {
	return &TaskQueue{rdb: client.rdb}
}

func (q *TaskQueue) Enqueue(ctx context.Context, task queue.Task, delay time.Duration) error {
	task.EnqueuedAt = time.Now()
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	readyAt := time.Now().Add(delay)
	err = q.rdb.ZAdd(ctx, taskQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

func (q *TaskQueue) PopDue(ctx context.Context) (*queue.Task, error) {
	now := time.Now().UnixMilli()
	raw, err := popDueScript.Run(ctx, q.rdb, []string{taskQueueKey}, now).Text()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop failed: %w", err)
	}

	var task queue.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (q *TaskQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, taskQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}
