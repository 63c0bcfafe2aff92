package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// Category determines how the orchestrator handles a stage failure.
type Category int

const (
	// CategoryRetryable errors are rescheduled with backoff until the
	// attempt budget is exhausted.
	CategoryRetryable Category = iota
	// CategoryFatal errors fail the (document, stage) immediately.
	CategoryFatal
)

// Classifier maps stage errors to retry decisions and computes backoff
// delays.
type Classifier struct {
	cfg config.RetryConfig
}

// NewClassifier creates a classifier with the given retry budget.
func NewClassifier(cfg config.RetryConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// MaxAttempts returns the configured attempt budget.
func (c *Classifier) MaxAttempts() int {
	return c.cfg.MaxAttempts
}

// Classify categorizes an error. Structural and contract problems are fatal;
// transient IO, external-service blips, and timeouts are retryable. Unknown
// errors default to retryable so a new failure mode cannot silently kill
// documents.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		// A nil error is a caller bug; fatal stops it from turning into
		// an endless retry loop.
		return CategoryFatal
	}
	if errors.Is(err, context.Canceled) {
		return CategoryFatal
	}

	switch domain.KindOf(err) {
	case domain.ErrKindValidation, domain.ErrKindCancelled:
		return CategoryFatal
	case domain.ErrKindTransientIO, domain.ErrKindExternalService, domain.ErrKindTimeout:
		return CategoryRetryable
	default:
		return CategoryRetryable
	}
}

// ShouldRetry reports whether a failed attempt (1-indexed) gets another try.
// Exceeding the budget converts a retryable error into a fatal one. A timed
// out external job gets exactly one resubmission: the wait budget was already
// spent in full once, so burning the whole attempt budget on it only delays
// the verdict.
func (c *Classifier) ShouldRetry(err error, attempt int) bool {
	if c.Classify(err) == CategoryFatal {
		return false
	}
	if domain.KindOf(err) == domain.ErrKindTimeout {
		return attempt < 2 && attempt < c.cfg.MaxAttempts
	}
	return attempt < c.cfg.MaxAttempts
}

// Backoff returns the delay before retrying the given attempt (1-indexed):
// exponential growth from the initial delay, 20% jitter, capped at the
// configured max.
func (c *Classifier) Backoff(attempt int) time.Duration {
	b := retry.WithCappedDuration(c.cfg.MaxDelay,
		retry.WithJitterPercent(20, retry.NewExponential(c.cfg.InitialDelay)))

	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	if d <= 0 {
		d = c.cfg.InitialDelay
	}
	return d
}
