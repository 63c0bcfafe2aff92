package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// releaseScript deletes the lock only when the caller still holds it, so a
// stale holder whose lease already expired cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only for the current holder.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// DocumentLock provides lease-based mutual exclusion per document. At most
// one non-expired holder exists per document id; acquisition is non-blocking
// and contention is handled by rescheduling the transition.
type DocumentLock struct {
	rdb *redis.Client
}

// NewDocumentLock creates a Redis-backed document lock.
func NewDocumentLock(client *Client) *DocumentLock {
	return &DocumentLock{rdb: client.rdb}
}

func lockKey(id domain.DocumentID) string {
	return fmt.Sprintf("lock:doc:%s", id.String())
}

// TryAcquire attempts to take the lease. Returns false immediately when a
// non-expired lock with a different holder exists.
func (l *DocumentLock) TryAcquire(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(id), holder, lease).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release drops the lease if holder still owns it. Returns false when the
// lock had already expired or belongs to someone else.
func (l *DocumentLock) Release(ctx context.Context, id domain.DocumentID, holder string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{lockKey(id)}, holder).Int()
	if err != nil {
		return false, fmt.Errorf("release failed: %w", err)
	}
	return n == 1, nil
}

// Renew extends the lease for the current holder. Long-running stages call
// this periodically so the lease does not expire mid-work.
func (l *DocumentLock) Renew(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, l.rdb, []string{lockKey(id)}, holder, lease.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew failed: %w", err)
	}
	return n == 1, nil
}
