package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/cache"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/lock"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/metrics"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/poller"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/retry"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/stages"
)

// contentionDelay spaces out retries of a transition that lost the lock race.
const contentionDelay = 5 * time.Second

// Orchestrator is the per-document state machine. Each HandleTask invocation
// is one stage transition: stateless between calls, resumable from the
// pipeline state store after any crash.
type Orchestrator struct {
	docs    storage.DocumentRepository
	stages  storage.StageRepository
	results storage.StageResultRepository

	cache      *cache.Accessor
	lock       lock.Lock
	queue      queue.Queue
	poller     *poller.Poller
	classifier *retry.Classifier

	extraction *stages.Extraction
	units      map[domain.Stage]stages.WorkUnit

	lockCfg  config.LockConfig
	cacheTTL time.Duration
	log      *slog.Logger
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Documents  storage.DocumentRepository
	Stages     storage.StageRepository
	Results    storage.StageResultRepository
	Cache      *cache.Accessor
	Lock       lock.Lock
	Queue      queue.Queue
	Poller     *poller.Poller
	Classifier *retry.Classifier
	Extraction *stages.Extraction
	Units      []stages.WorkUnit
	LockCfg    config.LockConfig
	CacheTTL   time.Duration
	Log        *slog.Logger
}

// New wires the orchestrator.
func New(d Deps) *Orchestrator {
	units := make(map[domain.Stage]stages.WorkUnit, len(d.Units))
	for _, u := range d.Units {
		units[u.Stage()] = u
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		docs:       d.Documents,
		stages:     d.Stages,
		results:    d.Results,
		cache:      d.Cache,
		lock:       d.Lock,
		queue:      d.Queue,
		poller:     d.Poller,
		classifier: d.Classifier,
		extraction: d.Extraction,
		units:      units,
		lockCfg:    d.LockCfg,
		cacheTTL:   d.CacheTTL,
		log:        log,
	}
}

// Intake registers a new document and enqueues its first stage transition.
func (o *Orchestrator) Intake(ctx context.Context, source domain.SourceRef, contentType string) (domain.DocumentID, error) {
	doc := &domain.Document{
		ID:           domain.NewDocumentID(),
		Source:       source,
		ContentType:  contentType,
		CurrentStage: domain.FirstStage(),
		Status:       domain.DocumentStatusIntake,
	}
	if err := o.docs.Create(ctx, doc); err != nil {
		return domain.DocumentID{}, fmt.Errorf("failed to create document: %w", err)
	}

	if err := o.enqueueStage(ctx, doc.ID, domain.FirstStage(), 0, 0); err != nil {
		return domain.DocumentID{}, err
	}
	return doc.ID, nil
}

// HandleTask dispatches one queue task. Errors returned here are handler
// bugs, not stage failures; stage failures are absorbed into document state.
func (o *Orchestrator) HandleTask(ctx context.Context, task *queue.Task) error {
	docID, err := domain.ParseDocumentID(task.DocumentID)
	if err != nil {
		return err
	}
	stage, err := domain.ParseStage(task.Stage)
	if err != nil {
		return err
	}

	switch task.Name {
	case queue.TaskProcessStage:
		return o.HandleTransition(ctx, docID, stage, task.Attempt)
	case queue.TaskPollJob:
		return o.HandlePoll(ctx, docID, stage, task.Attempt)
	default:
		return fmt.Errorf("unknown task %q", task.Name)
	}
}

// HandleTransition drives one stage of one document through the state
// machine: lock, cache consult, work, persist, advance.
func (o *Orchestrator) HandleTransition(ctx context.Context, docID domain.DocumentID, stage domain.Stage, attempt int) error {
	holder := uuid.NewString()
	acquired, err := o.lock.TryAcquire(ctx, docID, holder, o.lockCfg.Lease)
	if err != nil || !acquired {
		// Lock backend trouble degrades to contention: reschedule, never fail.
		metrics.LockContention.Inc()
		o.log.Debug("lock contention, rescheduling",
			"document", docID.String(), "stage", stage)
		return o.enqueueStage(ctx, docID, stage, attempt, contentionDelay)
	}
	defer o.releaseLock(ctx, docID, holder)

	doc, skip, err := o.loadForWork(ctx, docID, stage)
	if err != nil {
		if skip {
			return err
		}
		// A datastore blip must reschedule the task, not strand the
		// document; the worker only logs errors returned from here.
		return o.handleFailure(ctx, docID, stage, attempt+1, err)
	}
	if skip {
		return nil
	}

	// A completed record means a previous holder finished this stage; just
	// move the chain forward. No writes, no work unit.
	rec, err := o.stages.Get(ctx, docID, stage)
	if err != nil && !errors.Is(err, storage.ErrStageRecordNotFound) {
		return o.handleFailure(ctx, docID, stage, attempt, domain.NewTransientError(stage, err))
	}
	if rec != nil && rec.Status.Done() {
		return o.resumeAfter(ctx, doc, stage)
	}

	// Cache consult: a prior artifact in cache (or already committed to the
	// datastore by a crashed worker) satisfies the stage without recompute.
	if artifact, fromCache, lerr := o.loadArtifact(ctx, docID, stage); lerr == nil && artifact != nil {
		status := domain.StageStatusCompleted
		source := domain.SourceWork
		if fromCache {
			status = domain.StageStatusSkippedCacheHit
			source = domain.SourceCache
		}
		if err := o.stages.MarkStatus(ctx, docID, stage, status, source, ""); err != nil {
			return o.handleFailure(ctx, docID, stage, attempt, domain.NewTransientError(stage, err))
		}
		o.log.Info("stage satisfied by prior artifact",
			"document", docID.String(), "stage", stage, "from_cache", fromCache)
		metrics.StagesProcessed.WithLabelValues(string(stage), string(status)).Inc()
		return o.advance(ctx, doc, stage)
	}

	// Fresh work.
	newAttempt, err := o.stages.IncrementAttempt(ctx, docID, stage)
	if err != nil {
		return o.handleFailure(ctx, docID, stage, attempt, domain.NewTransientError(stage, err))
	}
	if err := o.stages.MarkStatus(ctx, docID, stage, domain.StageStatusRunning, "", ""); err != nil {
		return o.handleFailure(ctx, docID, stage, newAttempt, domain.NewTransientError(stage, err))
	}
	if doc.Status == domain.DocumentStatusIntake {
		if err := o.docs.UpdateStatus(ctx, docID, domain.DocumentStatusProcessing, "", ""); err != nil {
			return o.handleFailure(ctx, docID, stage, newAttempt, domain.NewTransientError(stage, err))
		}
	}

	if stage == domain.StageExtraction {
		return o.startExtraction(ctx, doc, newAttempt)
	}

	unit, ok := o.units[stage]
	if !ok {
		return o.failDocument(ctx, docID, stage,
			domain.NewValidationError(stage, fmt.Errorf("no work unit registered")))
	}

	start := time.Now()
	payload, err := o.runWithRenewal(ctx, docID, holder, func(ctx context.Context) (domain.StagePayload, error) {
		return unit.Run(ctx, doc, o.artifactLoader(docID))
	})
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		return o.handleFailure(ctx, docID, stage, newAttempt, err)
	}

	if err := o.commit(ctx, doc, stage, payload); err != nil {
		return o.handleFailure(ctx, docID, stage, newAttempt, err)
	}
	metrics.StagesProcessed.WithLabelValues(string(stage), string(domain.StageStatusCompleted)).Inc()
	return o.advance(ctx, doc, stage)
}

// startExtraction submits the OCR job and schedules the first poll. The lock
// is released as soon as the transition returns; the poll task re-acquires.
func (o *Orchestrator) startExtraction(ctx context.Context, doc *domain.Document, attempt int) error {
	h, err := o.poller.Submit(ctx, doc.ID, domain.StageExtraction, o.extraction.SubmitFunc(doc))
	if err != nil {
		return o.handleFailure(ctx, doc.ID, domain.StageExtraction, attempt, err)
	}
	if err := o.stages.SetExternalJobID(ctx, doc.ID, domain.StageExtraction, h.JobID); err != nil {
		o.log.Warn("failed to record external job id",
			"document", doc.ID.String(), "job_id", h.JobID, "error", err)
	}

	o.log.Info("submitted extraction job",
		"document", doc.ID.String(), "job_id", h.JobID)
	return o.queue.Enqueue(ctx, queue.Task{
		Name:       queue.TaskPollJob,
		DocumentID: doc.ID.String(),
		Stage:      string(domain.StageExtraction),
		Attempt:    attempt,
	}, 0)
}

// HandlePoll performs one poll attempt for the document's outstanding
// external job and either reschedules itself or commits the terminal result.
func (o *Orchestrator) HandlePoll(ctx context.Context, docID domain.DocumentID, stage domain.Stage, attempt int) error {
	holder := uuid.NewString()
	acquired, err := o.lock.TryAcquire(ctx, docID, holder, o.lockCfg.Lease)
	if err != nil || !acquired {
		metrics.LockContention.Inc()
		return o.queue.Enqueue(ctx, queue.Task{
			Name:       queue.TaskPollJob,
			DocumentID: docID.String(),
			Stage:      string(stage),
			Attempt:    attempt,
		}, contentionDelay)
	}
	defer o.releaseLock(ctx, docID, holder)

	doc, skip, err := o.loadForWork(ctx, docID, stage)
	if err != nil {
		if skip {
			return err
		}
		return o.handleFailure(ctx, docID, stage, attempt+1, err)
	}
	if skip {
		return nil
	}

	res, err := o.poller.Step(ctx, docID, stage, o.extraction.PollFunc())
	if err != nil {
		return o.handleFailure(ctx, docID, stage, attempt, err)
	}

	if !res.Terminal {
		return o.queue.Enqueue(ctx, queue.Task{
			Name:       queue.TaskPollJob,
			DocumentID: docID.String(),
			Stage:      string(stage),
			Attempt:    attempt,
		}, res.NextDelay)
	}

	metrics.ExternalPolls.WithLabelValues(string(res.Handle.State)).Inc()
	if res.Err != nil {
		return o.handleFailure(ctx, docID, stage, attempt, res.Err)
	}
	if res.Payload == nil {
		// Duplicate poll task after the result was already consumed.
		return o.advance(ctx, doc, stage)
	}

	if err := o.commit(ctx, doc, stage, res.Payload); err != nil {
		return o.handleFailure(ctx, docID, stage, attempt, err)
	}
	metrics.StagesProcessed.WithLabelValues(string(stage), string(domain.StageStatusCompleted)).Inc()
	return o.advance(ctx, doc, stage)
}

// loadForWork loads the document and applies the checks shared by every
// handler: unknown documents and terminal documents end the chain quietly,
// and out-of-order transitions get rescheduled.
func (o *Orchestrator) loadForWork(ctx context.Context, docID domain.DocumentID, stage domain.Stage) (*domain.Document, bool, error) {
	doc, err := o.docs.Load(ctx, docID)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			o.log.Error("task references unknown document", "document", docID.String())
			return nil, true, nil
		}
		return nil, false, domain.NewTransientError(stage, fmt.Errorf("load document: %w", err))
	}
	if doc.Status.Terminal() {
		o.log.Debug("dropping task for terminal document",
			"document", docID.String(), "status", doc.Status)
		return nil, true, nil
	}

	if prev, ok := stage.Prev(); ok {
		rec, err := o.stages.Get(ctx, docID, prev)
		if err != nil || !rec.Status.Done() {
			// Stage k+1 never begins before stage k completes.
			o.log.Warn("transition arrived before prior stage completed",
				"document", docID.String(), "stage", stage)
			return nil, true, o.enqueueStage(ctx, docID, stage, 0, contentionDelay)
		}
	}
	return doc, false, nil
}

// commit validates the payload and persists it, datastore first and cache
// best-effort second, then marks the stage completed. The document status is
// re-checked immediately before the write so late results of cancelled
// documents become no-ops.
func (o *Orchestrator) commit(ctx context.Context, doc *domain.Document, stage domain.Stage, payload domain.StagePayload) error {
	if payload.Kind() != stage {
		return domain.NewValidationError(stage,
			fmt.Errorf("work unit returned %s payload", payload.Kind()))
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	current, err := o.docs.Load(ctx, doc.ID)
	if err != nil {
		return domain.NewTransientError(stage, err)
	}
	if current.Status.Terminal() {
		o.log.Info("discarding result for terminal document",
			"document", doc.ID.String(), "stage", stage, "status", current.Status)
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.NewValidationError(stage, fmt.Errorf("payload not serializable: %w", err))
	}
	if err := o.results.SaveResult(ctx, doc.ID, stage, raw); err != nil {
		return domain.NewTransientError(stage, err)
	}

	// Write-through is best-effort and strictly after the durable write.
	o.cache.SetWithTTL(ctx, cache.StageKey(doc.ID, stage), payload, o.cacheTTL)

	if err := o.stages.MarkStatus(ctx, doc.ID, stage, domain.StageStatusCompleted, domain.SourceWork, ""); err != nil {
		return domain.NewTransientError(stage, err)
	}
	return nil
}

// resumeAfter moves the chain past a stage that was already completed by an
// earlier holder. It enqueues only: the stage pointer was advanced when the
// stage first completed, so a duplicate transition performs zero writes.
func (o *Orchestrator) resumeAfter(ctx context.Context, doc *domain.Document, stage domain.Stage) error {
	next, ok := stage.Next()
	if !ok {
		// Crash between finalization and the completed mark: finish now.
		if err := o.docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusCompleted, "", ""); err != nil {
			return err
		}
		metrics.DocumentsCompleted.WithLabelValues(string(domain.DocumentStatusCompleted)).Inc()
		return nil
	}
	return o.enqueueStage(ctx, doc.ID, next, 0, 0)
}

// advance enqueues the next stage or marks the document completed after the
// last one.
func (o *Orchestrator) advance(ctx context.Context, doc *domain.Document, stage domain.Stage) error {
	next, ok := stage.Next()
	if !ok {
		if err := o.docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusCompleted, "", ""); err != nil {
			return err
		}
		metrics.DocumentsCompleted.WithLabelValues(string(domain.DocumentStatusCompleted)).Inc()
		o.log.Info("document completed", "document", doc.ID.String())
		return nil
	}

	if err := o.docs.UpdateCurrentStage(ctx, doc.ID, next); err != nil {
		return err
	}
	return o.enqueueStage(ctx, doc.ID, next, 0, 0)
}

// handleFailure routes a stage error through the retry classifier: fatal
// fails the document, retryable within budget reschedules with backoff.
func (o *Orchestrator) handleFailure(ctx context.Context, docID domain.DocumentID, stage domain.Stage, attempt int, cause error) error {
	if o.classifier.ShouldRetry(cause, attempt) {
		metrics.Retries.WithLabelValues(string(stage)).Inc()
		delay := o.classifier.Backoff(attempt)
		o.log.Warn("stage failed, retrying",
			"document", docID.String(), "stage", stage,
			"attempt", attempt, "delay", delay, "error", cause)
		if err := o.stages.MarkStatus(ctx, docID, stage, domain.StageStatusPending, "", cause.Error()); err != nil {
			o.log.Error("failed to mark stage pending", "document", docID.String(), "error", err)
		}
		return o.queue.Enqueue(ctx, queue.Task{
			Name:       queue.TaskProcessStage,
			DocumentID: docID.String(),
			Stage:      string(stage),
			Attempt:    attempt,
		}, delay)
	}
	return o.failDocument(ctx, docID, stage, cause)
}

// failDocument marks the (document, stage) failed and halts the chain; the
// error kind and message stay attached for operators.
func (o *Orchestrator) failDocument(ctx context.Context, docID domain.DocumentID, stage domain.Stage, cause error) error {
	kind := domain.KindOf(cause)
	if kind == domain.ErrKindTimeout {
		// An exhausted wait budget is an external-service failure as far
		// as operators are concerned; the message keeps the timeout detail.
		kind = domain.ErrKindExternalService
	}
	o.log.Error("stage failed permanently",
		"document", docID.String(), "stage", stage, "kind", kind, "error", cause)

	if err := o.stages.MarkStatus(ctx, docID, stage, domain.StageStatusFailed, "", cause.Error()); err != nil {
		o.log.Error("failed to mark stage failed", "document", docID.String(), "error", err)
	}
	if err := o.docs.UpdateStatus(ctx, docID, domain.DocumentStatusFailed, kind, cause.Error()); err != nil {
		return err
	}
	metrics.StagesProcessed.WithLabelValues(string(stage), string(domain.StageStatusFailed)).Inc()
	metrics.DocumentsCompleted.WithLabelValues(string(domain.DocumentStatusFailed)).Inc()
	return nil
}

// artifactLoader gives work units read access to completed prior artifacts.
func (o *Orchestrator) artifactLoader(docID domain.DocumentID) stages.ArtifactLoader {
	return func(ctx context.Context, stage domain.Stage) (domain.StagePayload, error) {
		payload, _, err := o.loadArtifact(ctx, docID, stage)
		if err != nil {
			return nil, domain.NewTransientError(stage, err)
		}
		if payload == nil {
			return nil, domain.NewValidationError(stage,
				fmt.Errorf("artifact for prior stage %s missing", stage))
		}
		return payload, nil
	}
}

// loadArtifact fetches the (document, stage) artifact, cache first with the
// datastore as loader. Returns (nil, false, nil) when no artifact exists yet.
func (o *Orchestrator) loadArtifact(ctx context.Context, docID domain.DocumentID, stage domain.Stage) (domain.StagePayload, bool, error) {
	dest, err := domain.PayloadFor(stage)
	if err != nil {
		return nil, false, err
	}

	fromCache, err := o.cache.GetWithFallback(ctx, cache.StageKey(docID, stage), dest,
		func(ctx context.Context) (any, error) {
			raw, err := o.results.GetResult(ctx, docID, stage)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(raw), nil
		})
	if err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			return nil, false, nil
		}
		metrics.CacheRequests.WithLabelValues("error").Inc()
		return nil, false, err
	}

	if fromCache {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}
	return dest, fromCache, nil
}

// runWithRenewal executes fn while renewing the document lease in the
// background so slow work units outlive the initial lease.
func (o *Orchestrator) runWithRenewal(ctx context.Context, docID domain.DocumentID, holder string, fn func(context.Context) (domain.StagePayload, error)) (domain.StagePayload, error) {
	renewCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(o.lockCfg.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if ok, err := o.lock.Renew(renewCtx, docID, holder, o.lockCfg.Lease); err != nil || !ok {
					o.log.Warn("lease renewal failed",
						"document", docID.String(), "error", err)
				}
			}
		}
	}()

	return fn(ctx)
}

func (o *Orchestrator) enqueueStage(ctx context.Context, docID domain.DocumentID, stage domain.Stage, attempt int, delay time.Duration) error {
	return o.queue.Enqueue(ctx, queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: docID.String(),
		Stage:      string(stage),
		Attempt:    attempt,
	}, delay)
}

func (o *Orchestrator) releaseLock(ctx context.Context, docID domain.DocumentID, holder string) {
	if _, err := o.lock.Release(ctx, docID, holder); err != nil {
		// Expired leases clean themselves up; a failed release only delays
		// the next acquisition.
		o.log.Warn("lock release failed", "document", docID.String(), "error", err)
	}
}
