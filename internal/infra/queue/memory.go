package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used by tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items []memoryItem
	now   func() time.Time
}

type memoryItem struct {
	task    Task
	readyAt time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

// SetClock replaces the clock, for tests exercising delayed delivery.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.EnqueuedAt = q.now()
	q.items = append(q.items, memoryItem{task: task, readyAt: q.now().Add(delay)})
	return nil
}

func (q *MemoryQueue) PopDue(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	best := -1
	for i, it := range q.items {
		if it.readyAt.After(now) {
			continue
		}
		if best == -1 || it.readyAt.Before(q.items[best].readyAt) {
			best = i
		}
	}
	if best == -1 {
		return nil, nil
	}
	t := q.items[best].task
	q.items = append(q.items[:best], q.items[best+1:]...)
	return &t, nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
