package queue

import (
	"context"
	"time"
)

// Task names dispatched by the worker loop.
const (
	TaskProcessStage = "process_stage"
	TaskPollJob      = "poll_job"
)

// Task is one unit of work on the distributed queue. Identifiers travel as
// strings on the wire and are parsed back into domain types on receipt.
type Task struct {
	Name       string    `json:"name"`
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the task queue collaborator. Delay schedules the task for future
// delivery; the retry attempt number rides inside the task payload.
type Queue interface {
	Enqueue(ctx context.Context, task Task, delay time.Duration) error

	// PopDue removes and returns the next ready task, or (nil, nil) when
	// nothing is due yet.
	PopDue(ctx context.Context) (*Task, error)

	// Depth reports the number of tasks waiting (due or delayed).
	Depth(ctx context.Context) (int64, error)
}
