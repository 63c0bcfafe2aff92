package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/poller"
)

// JobHandleStore implements poller.HandleStore on Redis. Handles carry a TTL
// so abandoned jobs clean themselves up.
type JobHandleStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewJobHandleStore creates a Redis-backed job handle store.
func NewJobHandleStore(client *Client, ttl time.Duration) *JobHandleStore {
	return &JobHandleStore{rdb: client.rdb, ttl: ttl}
}

func jobKey(docID domain.DocumentID, stage domain.Stage) string {
	return fmt.Sprintf("job:doc:%s:stage:%s", docID.String(), stage)
}

func (s *JobHandleStore) Save(ctx context.Context, h *poller.JobHandle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal job handle: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(h.DocumentID, h.Stage), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (s *JobHandleStore) Load(ctx context.Context, docID domain.DocumentID, stage domain.Stage) (*poller.JobHandle, error) {
	data, err := s.rdb.Get(ctx, jobKey(docID, stage)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var h poller.JobHandle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job handle: %w", err)
	}
	return &h, nil
}

func (s *JobHandleStore) Delete(ctx context.Context, docID domain.DocumentID, stage domain.Stage) error {
	return s.rdb.Del(ctx, jobKey(docID, stage)).Err()
}
