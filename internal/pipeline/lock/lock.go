package lock

import (
	"context"
	"sync"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// Lock provides lease-based mutual exclusion per document. Acquisition is
// non-blocking: contention means the transition gets rescheduled, never that
// a worker waits.
type Lock interface {
	TryAcquire(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error)
	Release(ctx context.Context, id domain.DocumentID, holder string) (bool, error)
	Renew(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error)
}

// MemoryLock is an in-process Lock used by tests and single-node setups.
type MemoryLock struct {
	mu     sync.Mutex
	leases map[domain.DocumentID]leaseEntry
	now    func() time.Time
}

type leaseEntry struct {
	holder    string
	expiresAt time.Time
}

// NewMemoryLock creates an empty in-memory lock table.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		leases: make(map[domain.DocumentID]leaseEntry),
		now:    time.Now,
	}
}

// SetClock replaces the clock, for lease expiry tests.
func (l *MemoryLock) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLock) TryAcquire(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[id]; ok && cur.expiresAt.After(l.now()) && cur.holder != holder {
		return false, nil
	}
	l.leases[id] = leaseEntry{holder: holder, expiresAt: l.now().Add(lease)}
	return true, nil
}

func (l *MemoryLock) Release(ctx context.Context, id domain.DocumentID, holder string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[id]
	if !ok || cur.holder != holder || !cur.expiresAt.After(l.now()) {
		return false, nil
	}
	delete(l.leases, id)
	return true, nil
}

func (l *MemoryLock) Renew(ctx context.Context, id domain.DocumentID, holder string, lease time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[id]
	if !ok || cur.holder != holder || !cur.expiresAt.After(l.now()) {
		return false, nil
	}
	cur.expiresAt = l.now().Add(lease)
	l.leases[id] = cur
	return true, nil
}

// Holder reports the current live holder, for tests.
func (l *MemoryLock) Holder(id domain.DocumentID) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[id]
	if !ok || !cur.expiresAt.After(l.now()) {
		return "", false
	}
	return cur.holder, true
}
