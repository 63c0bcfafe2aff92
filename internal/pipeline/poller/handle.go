package poller

import (
	"context"
	"sync"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// JobState tracks an external job through its lifecycle.
type JobState string

const (
	JobStateSubmitted JobState = "submitted"
	JobStatePolling   JobState = "polling"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateTimedOut  JobState = "timed_out"
)

// Terminal reports whether the job reached an end state.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateTimedOut
}

// JobHandle is the ephemeral record of one outstanding external job. It is
// persisted between poll attempts so any worker can resume polling, and
// discarded once the terminal result has been consumed.
type JobHandle struct {
	JobID        string            `json:"job_id"`
	DocumentID   domain.DocumentID `json:"document_id"`
	Stage        domain.Stage      `json:"stage"`
	State        JobState          `json:"state"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	PollCount    int               `json:"poll_count"`
	LastStatus   string            `json:"last_status"`
	LastPolledAt time.Time         `json:"last_polled_at"`
}

// HandleStore persists job handles between poll attempts.
type HandleStore interface {
	Save(ctx context.Context, h *JobHandle) error
	Load(ctx context.Context, docID domain.DocumentID, stage domain.Stage) (*JobHandle, error)
	Delete(ctx context.Context, docID domain.DocumentID, stage domain.Stage) error
}

// MemoryHandleStore is an in-process HandleStore for tests.
type MemoryHandleStore struct {
	mu      sync.Mutex
	handles map[string]JobHandle
}

// NewMemoryHandleStore creates an empty in-memory handle store.
func NewMemoryHandleStore() *MemoryHandleStore {
	return &MemoryHandleStore{handles: make(map[string]JobHandle)}
}

func handleMapKey(docID domain.DocumentID, stage domain.Stage) string {
	return docID.String() + "/" + string(stage)
}

func (s *MemoryHandleStore) Save(ctx context.Context, h *JobHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[handleMapKey(h.DocumentID, h.Stage)] = *h
	return nil
}

func (s *MemoryHandleStore) Load(ctx context.Context, docID domain.DocumentID, stage domain.Stage) (*JobHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[handleMapKey(docID, stage)]
	if !ok {
		return nil, nil
	}
	out := h
	return &out, nil
}

func (s *MemoryHandleStore) Delete(ctx context.Context, docID domain.DocumentID, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, handleMapKey(docID, stage))
	return nil
}
