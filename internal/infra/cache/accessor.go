package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// Loader produces the authoritative value on a cache miss, typically a
// datastore read.
type Loader func(ctx context.Context) (any, error)

// Accessor is the typed read/write surface over the cache store. Cache
// failures never propagate: every read degrades to the loader, every write
// degrades to a logged no-op.
type Accessor struct {
	store         Store
	breaker       *Breaker
	maxEntryBytes int
	log           *slog.Logger
}

// NewAccessor wires a store and breaker together.
func NewAccessor(store Store, breaker *Breaker, maxEntryBytes int, log *slog.Logger) *Accessor {
	if log == nil {
		log = slog.Default()
	}
	return &Accessor{
		store:         store,
		breaker:       breaker,
		maxEntryBytes: maxEntryBytes,
		log:           log,
	}
}

// StageKey derives the cache key for a (document, stage) artifact. Keys are
// stage-namespaced and versioned so payload format changes cannot collide
// with older entries.
func StageKey(id domain.DocumentID, stage domain.Stage) string {
	return fmt.Sprintf("cache:v1:doc:%s:stage:%s", id.String(), stage)
}

// GetWithFallback tries the cache first and decodes a hit into dest. On a
// miss, backend error, or open breaker it invokes loader and decodes its
// result into dest instead. The bool result reports whether the value came
// from cache. There is no implicit write-back.
func (a *Accessor) GetWithFallback(ctx context.Context, key string, dest any, loader Loader) (bool, error) {
	if a.breaker.Healthy() {
		raw, err := a.store.Get(ctx, key)
		switch {
		case err == nil:
			a.breaker.RecordSuccess()
			if uerr := json.Unmarshal(raw, dest); uerr == nil {
				return true, nil
			}
			// Corrupt entry: drop it and fall through to the loader.
			a.log.Warn("cache entry undecodable, falling back", "key", key)
			_ = a.store.Delete(ctx, key)
		case errors.Is(err, ErrNotFound):
			a.breaker.RecordSuccess()
		default:
			a.breaker.RecordFailure()
			a.log.Warn("cache read failed, falling back", "key", key, "error", err)
		}
	}

	val, err := loader(ctx)
	if err != nil {
		return false, err
	}

	// Round-trip through JSON so the loader can return any shape that
	// serializes to the caller's dest type.
	raw, err := json.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("loader result not serializable: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("loader result does not match destination: %w", err)
	}
	return false, nil
}

// SetWithTTL serializes value and stores it under key. Returns false without
// writing when the entry exceeds the size cap or the backend is unavailable.
// Cache writes are best-effort and must never fail the pipeline.
func (a *Accessor) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		a.log.Warn("cache write skipped: unserializable value", "key", key, "error", err)
		return false
	}
	if a.maxEntryBytes > 0 && len(raw) > a.maxEntryBytes {
		a.log.Debug("cache write skipped: entry too large",
			"key", key, "size", len(raw), "cap", a.maxEntryBytes)
		return false
	}
	if !a.breaker.Healthy() {
		return false
	}

	if err := a.store.Set(ctx, key, raw, ttl); err != nil {
		a.breaker.RecordFailure()
		a.log.Warn("cache write failed", "key", key, "error", err)
		return false
	}
	a.breaker.RecordSuccess()
	return true
}

// Invalidate removes a key, best-effort.
func (a *Accessor) Invalidate(ctx context.Context, key string) {
	if !a.breaker.Healthy() {
		return
	}
	if err := a.store.Delete(ctx, key); err != nil {
		a.breaker.RecordFailure()
	}
}

// Probe runs a health check against the backend and feeds the result to the
// breaker. Called periodically so an open breaker can close again.
func (a *Accessor) Probe(ctx context.Context) bool {
	if err := a.store.Ping(ctx); err != nil {
		a.breaker.RecordFailure()
		return false
	}
	a.breaker.RecordSuccess()
	return true
}
