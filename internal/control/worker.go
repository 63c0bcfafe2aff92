package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/orchestrator"
)

// Worker drains the task queue and hands each due task to the orchestrator.
// Workers never block on stage timing: delayed tasks stay on the queue until
// their ready-at time, so an idle worker only sleeps the poll interval.
type Worker struct {
	id       int
	queue    queue.Queue
	orch     *orchestrator.Orchestrator
	interval time.Duration
	log      *slog.Logger
}

// NewWorker creates a queue consumer.
func NewWorker(id int, q queue.Queue, orch *orchestrator.Orchestrator, interval time.Duration, log *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		id:       id,
		queue:    q,
		orch:     orch,
		interval: interval,
		log:      log.With("worker", id),
	}
}

// ID returns the worker's index within the pool.
func (w *Worker) ID() int {
	return w.id
}

// Run consumes tasks until the context is cancelled. A pop error or an empty
// queue backs off one poll interval; task handler errors are logged and the
// task is dropped (stage failures are recorded in document state by the
// orchestrator, not surfaced here).
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.queue.PopDue(ctx)
		if err != nil {
			w.log.Warn("Failed to pop task", "error", err)
			w.sleep(ctx)
			continue
		}
		if task == nil {
			w.sleep(ctx)
			continue
		}

		if err := w.orch.HandleTask(ctx, task); err != nil {
			w.log.Error("Task handler failed",
				"task", task.Name,
				"document_id", task.DocumentID,
				"stage", task.Stage,
				"error", err)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
