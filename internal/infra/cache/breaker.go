package cache

import (
	"sync"
	"time"
)

// Breaker disables the cache backend after repeated consecutive failures so
// a dead Redis cannot add latency to every stage transition. While open, all
// cache operations skip straight to their fallback.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	openFor   time.Duration
	failures  int
	openUntil time.Time

	// now is swappable for tests
	now func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for openFor.
func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
	}
}

// Healthy reports whether cache operations should be attempted.
func (b *Breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().After(b.openUntil)
}

// RecordSuccess resets the consecutive failure counter and closes the
// breaker. While open, only the periodic health probe reaches the backend,
// so a successful probe is what brings the cache back early.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

// RecordFailure counts a backend failure and opens the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.openFor)
		b.failures = 0
	}
}

// OpenUntil returns the time the breaker closes again (zero when closed).
func (b *Breaker) OpenUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.now().After(b.openUntil) {
		return time.Time{}
	}
	return b.openUntil
}
