package queue

import (
	"context"
	"testing"
	"time"
)

func TestPopDueOrdering(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()
	q.SetClock(func() time.Time { return now })

	if err := q.Enqueue(ctx, Task{Name: TaskProcessStage, Stage: "segmentation"}, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, Task{Name: TaskProcessStage, Stage: "extraction"}, 0); err != nil {
		t.Fatal(err)
	}

	task, err := q.PopDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if task == nil || task.Stage != "extraction" {
		t.Fatalf("expected the immediately due task, got %+v", task)
	}

	// The delayed task is not visible until its ready-at time passes.
	task, err = q.PopDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if task != nil {
		t.Fatalf("delayed task surfaced early: %+v", task)
	}

	now = now.Add(11 * time.Second)
	task, err = q.PopDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if task == nil || task.Stage != "segmentation" {
		t.Fatalf("expected the delayed task after its delay, got %+v", task)
	}
}

func TestPopDueEarliestFirst(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	now := time.Now()
	q.SetClock(func() time.Time { return now })

	_ = q.Enqueue(ctx, Task{DocumentID: "b"}, 5*time.Second)
	_ = q.Enqueue(ctx, Task{DocumentID: "a"}, 2*time.Second)

	now = now.Add(10 * time.Second)
	first, _ := q.PopDue(ctx)
	second, _ := q.PopDue(ctx)
	if first == nil || second == nil {
		t.Fatal("both tasks should be due")
	}
	if first.DocumentID != "a" || second.DocumentID != "b" {
		t.Errorf("pop order = %s, %s", first.DocumentID, second.DocumentID)
	}
}

func TestDepthCountsDelayed(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	_ = q.Enqueue(ctx, Task{}, time.Hour)
	_ = q.Enqueue(ctx, Task{}, 0)

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 2 {
		t.Errorf("depth = %d, expected 2 (delayed tasks still count)", depth)
	}
}
