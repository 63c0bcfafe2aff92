package poller

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// SubmitFunc starts the external job and returns its id.
type SubmitFunc func(ctx context.Context) (string, error)

// PollFunc checks the external job once. It returns the job's current state:
// Done with a Payload on success, Done with Err on failure, neither while the
// job is still running. StatusLabel is recorded on the handle for operators.
type PollFunc func(ctx context.Context, jobID string) (*PollStatus, error)

// PollStatus is the outcome of a single poll call.
type PollStatus struct {
	Done        bool
	StatusLabel string
	Payload     domain.StagePayload
	Err         error
}

// StepResult is the outcome of one poll attempt. When Terminal is false the
// caller re-enqueues a delayed poll task for NextDelay; the poller itself
// never sleeps.
type StepResult struct {
	Handle    *JobHandle
	Terminal  bool
	Payload   domain.StagePayload
	Err       error
	NextDelay time.Duration
}

// Poller drives submit→poll→terminal for long-running external jobs. All
// cross-attempt state lives in the HandleStore so any worker can pick up the
// next poll.
type Poller struct {
	cfg   config.PollerConfig
	store HandleStore
	log   *slog.Logger

	now func() time.Time
}

// New creates a poller.
func New(cfg config.PollerConfig, store HandleStore, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{cfg: cfg, store: store, log: log, now: time.Now}
}

// Submit starts the external job and persists its handle. If a live handle
// already exists for (document, stage), meaning a crashed worker submitted
// before dying, the existing job is reused instead of submitting a duplicate.
func (p *Poller) Submit(ctx context.Context, docID domain.DocumentID, stage domain.Stage, submit SubmitFunc) (*JobHandle, error) {
	if existing, err := p.store.Load(ctx, docID, stage); err == nil && existing != nil && !existing.State.Terminal() {
		p.log.Info("reusing outstanding external job",
			"document", docID.String(), "stage", stage, "job_id", existing.JobID)
		return existing, nil
	}

	jobID, err := submit(ctx)
	if err != nil {
		return nil, domain.NewExternalServiceError(stage, fmt.Errorf("submit failed: %w", err))
	}

	h := &JobHandle{
		JobID:       jobID,
		DocumentID:  docID,
		Stage:       stage,
		State:       JobStateSubmitted,
		SubmittedAt: p.now(),
	}
	if err := p.store.Save(ctx, h); err != nil {
		// The job is already running; losing the handle only costs a
		// resubmit after lease expiry.
		p.log.Warn("failed to persist job handle", "job_id", jobID, "error", err)
	}
	return h, nil
}

// Step performs one poll attempt against the stored handle. Returns a
// terminal result, or a non-terminal result carrying the delay before the
// next attempt.
func (p *Poller) Step(ctx context.Context, docID domain.DocumentID, stage domain.Stage, poll PollFunc) (*StepResult, error) {
	h, err := p.store.Load(ctx, docID, stage)
	if err != nil {
		return nil, domain.NewTransientError(stage, fmt.Errorf("load job handle: %w", err))
	}
	if h == nil {
		return nil, domain.NewTransientError(stage, fmt.Errorf("no job handle for document %s stage %s", docID, stage))
	}
	if h.State.Terminal() {
		return p.terminal(ctx, h)
	}

	// The wait budget is checked before polling so the configured schedule
	// of attempts inside MaxWait always runs in full.
	if p.now().Sub(h.SubmittedAt) > p.cfg.MaxWait {
		h.State = JobStateTimedOut
		p.saveHandle(ctx, h)
		return p.terminal(ctx, h)
	}

	h.PollCount++
	h.LastPolledAt = p.now()
	h.State = JobStatePolling

	status, err := poll(ctx, h.JobID)
	if err != nil {
		h.LastStatus = "poll_error"
		p.saveHandle(ctx, h)
		return nil, domain.NewExternalServiceError(stage, fmt.Errorf("poll %s failed: %w", h.JobID, err))
	}

	h.LastStatus = status.StatusLabel
	if !status.Done {
		p.saveHandle(ctx, h)
		return &StepResult{Handle: h, NextDelay: p.nextDelay(h.PollCount)}, nil
	}

	if status.Err != nil {
		h.State = JobStateFailed
		p.saveHandle(ctx, h)
		_ = p.store.Delete(ctx, docID, stage)
		return &StepResult{
			Handle:   h,
			Terminal: true,
			Err:      domain.NewExternalServiceError(stage, status.Err),
		}, nil
	}

	h.State = JobStateSucceeded
	p.saveHandle(ctx, h)
	// Terminal and consumed: the handle has served its purpose.
	_ = p.store.Delete(ctx, docID, stage)
	return &StepResult{Handle: h, Terminal: true, Payload: status.Payload}, nil
}

// PollUntilTerminal drives Step in-process until the job terminates. Worker
// tasks use the self-rescheduling Step path instead; this is for the admin
// CLI and tests, where a bounded wait is acceptable.
func (p *Poller) PollUntilTerminal(ctx context.Context, docID domain.DocumentID, stage domain.Stage, poll PollFunc) (*StepResult, error) {
	for {
		res, err := p.Step(ctx, docID, stage, poll)
		if err != nil {
			return nil, err
		}
		if res.Terminal {
			return res, nil
		}

		timer := time.NewTimer(res.NextDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Poller) terminal(ctx context.Context, h *JobHandle) (*StepResult, error) {
	switch h.State {
	case JobStateSucceeded:
		// Payload was consumed by the call that observed success; reaching
		// here means a duplicate task fired after consumption.
		_ = p.store.Delete(ctx, h.DocumentID, h.Stage)
		return &StepResult{Handle: h, Terminal: true}, nil
	case JobStateTimedOut:
		_ = p.store.Delete(ctx, h.DocumentID, h.Stage)
		return &StepResult{
			Handle:   h,
			Terminal: true,
			Err: domain.NewTimeoutError(h.Stage,
				fmt.Errorf("external job %s exceeded max wait %s after %d polls", h.JobID, p.cfg.MaxWait, h.PollCount)),
		}, nil
	default:
		_ = p.store.Delete(ctx, h.DocumentID, h.Stage)
		return &StepResult{
			Handle:   h,
			Terminal: true,
			Err:      domain.NewExternalServiceError(h.Stage, fmt.Errorf("external job %s failed", h.JobID)),
		}, nil
	}
}

func (p *Poller) saveHandle(ctx context.Context, h *JobHandle) {
	if err := p.store.Save(ctx, h); err != nil {
		p.log.Warn("failed to persist job handle", "job_id", h.JobID, "error", err)
	}
}

// nextDelay computes the interval before poll attempt n+1: the initial
// interval grown geometrically, capped at the configured max.
func (p *Poller) nextDelay(pollCount int) time.Duration {
	d := float64(p.cfg.InitialInterval) * math.Pow(p.cfg.GrowthFactor, float64(pollCount-1))
	if d > float64(p.cfg.MaxInterval) {
		return p.cfg.MaxInterval
	}
	return time.Duration(d)
}
