package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/config"
	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/cache"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/queue"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/services"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/memory"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/lock"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/poller"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/retry"
	"github.com/joeott/legal-doc-processor-sub003/internal/pipeline/stages"
)

// fakeOCR completes jobs on the first poll unless scripted otherwise.
type fakeOCR struct {
	mu        sync.Mutex
	submits   int
	polls     int
	failsLeft int // submit errors before succeeding
}

func (f *fakeOCR) Submit(ctx context.Context, ref domain.SourceRef, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.failsLeft > 0 {
		f.failsLeft--
		return "", errors.New("ocr service unavailable")
	}
	return "ocr-job-1", nil
}

func (f *fakeOCR) Poll(ctx context.Context, jobID string) (*services.OCRJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return &services.OCRJobStatus{
		State:      services.OCRJobSucceeded,
		Text:       "In the matter of Acme Corp versus Jane Smith before the Delaware court.",
		Confidence: 0.95,
		Pages:      1,
	}, nil
}

// countingUnit is a scripted work unit that counts invocations.
type countingUnit struct {
	mu       sync.Mutex
	stage    domain.Stage
	runs     int
	failures int // errors returned before succeeding
	failWith error
	payload  func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error)
}

func (u *countingUnit) Stage() domain.Stage { return u.stage }

func (u *countingUnit) Run(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
	u.mu.Lock()
	u.runs++
	fail := u.failures > 0
	if fail {
		u.failures--
	}
	u.mu.Unlock()

	if fail {
		err := u.failWith
		if err == nil {
			err = domain.NewTransientError(u.stage, errors.New("scripted failure"))
		}
		return nil, err
	}
	return u.payload(ctx, doc, prior)
}

func (u *countingUnit) Runs() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runs
}

// harness bundles the orchestrator with every in-memory collaborator.
type harness struct {
	orch     *Orchestrator
	store    *memory.Storage
	docs     storage.DocumentRepository
	accessor *cache.Accessor
	queue    *queue.MemoryQueue
	lock     *lock.MemoryLock
	ocr      *fakeOCR
	units    map[domain.Stage]*countingUnit

	pollMaxWait time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:       memory.New(),
		queue:       queue.NewMemoryQueue(),
		lock:        lock.NewMemoryLock(),
		ocr:         &fakeOCR{},
		pollMaxWait: time.Minute,
	}
	h.docs = h.store
	h.accessor = cache.NewAccessor(cache.NewMemoryStore(), cache.NewBreaker(5, time.Minute), 1<<20, nil)

	h.units = map[domain.Stage]*countingUnit{
		domain.StageSegmentation: {stage: domain.StageSegmentation, payload: func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
			if _, err := prior(ctx, domain.StageExtraction); err != nil {
				return nil, err
			}
			return &domain.SegmentationResult{Chunks: []domain.Chunk{{Index: 0, Text: "chunk one"}}}, nil
		}},
		domain.StageEntityExtraction: {stage: domain.StageEntityExtraction, payload: func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
			return &domain.EntityExtractionResult{Mentions: []domain.EntityMention{{ChunkIndex: 0, Text: "Acme Corp", Type: "organization", Confidence: 0.9}}}, nil
		}},
		domain.StageEntityResolution: {stage: domain.StageEntityResolution, payload: func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
			return &domain.EntityResolutionResult{Entities: []domain.CanonicalEntity{{ID: "e1", Name: "Acme Corp", Type: "organization", Mentions: []int{0}}}}, nil
		}},
		domain.StageRelationshipBuilding: {stage: domain.StageRelationshipBuilding, payload: func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
			return &domain.RelationshipResult{}, nil
		}},
		domain.StageFinalization: {stage: domain.StageFinalization, payload: func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
			return &domain.FinalizationResult{ChunkCount: 1, MentionCount: 1, EntityCount: 1}, nil
		}},
	}

	h.orch = h.buildOrch()
	return h
}

// buildOrch wires an orchestrator over the harness's current collaborators.
func (h *harness) buildOrch() *Orchestrator {
	unitList := make([]stages.WorkUnit, 0, len(h.units))
	for _, u := range h.units {
		unitList = append(unitList, u)
	}
	return New(Deps{
		Documents:  h.docs,
		Stages:     h.store,
		Results:    h.store,
		Cache:      h.accessor,
		Lock:       h.lock,
		Queue:      h.queue,
		Poller:     poller.New(config.PollerConfig{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, GrowthFactor: 1.5, MaxWait: h.pollMaxWait}, poller.NewMemoryHandleStore(), nil),
		Classifier: retry.NewClassifier(config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
		Extraction: stages.NewExtraction(h.ocr),
		Units:      unitList,
		LockCfg:    config.LockConfig{Lease: time.Minute, RenewInterval: 30 * time.Second},
		CacheTTL:   time.Hour,
	})
}

// drain runs queued tasks through the orchestrator until the queue empties,
// shifting the queue clock past every delay between rounds.
func (h *harness) drain(t *testing.T, ctx context.Context) {
	t.Helper()
	base := time.Now()
	offset := time.Duration(0)
	h.queue.SetClock(func() time.Time { return base.Add(offset) })

	for i := 0; i < 300; i++ {
		task, err := h.queue.PopDue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if task == nil {
			depth, _ := h.queue.Depth(ctx)
			if depth == 0 {
				return
			}
			// Everything left is delayed; jump the clock forward.
			offset += time.Minute
			continue
		}
		if err := h.orch.HandleTask(ctx, task); err != nil {
			t.Fatalf("task %s %s failed: %v", task.Name, task.Stage, err)
		}
	}
	t.Fatal("queue did not drain")
}

// runUntilStageDone processes tasks until the given stage's record is done.
func (h *harness) runUntilStageDone(t *testing.T, ctx context.Context, docID domain.DocumentID, stage domain.Stage) {
	t.Helper()
	for i := 0; i < 100; i++ {
		rec, err := h.store.Get(ctx, docID, stage)
		if err == nil && rec.Status.Done() {
			return
		}
		task, _ := h.queue.PopDue(ctx)
		if task == nil {
			t.Fatalf("queue empty before %s completed", stage)
		}
		if err := h.orch.HandleTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	t.Fatalf("stage %s never completed", stage)
}

func (h *harness) intake(t *testing.T, ctx context.Context) domain.DocumentID {
	t.Helper()
	docID, err := h.orch.Intake(ctx, domain.SourceRef{Bucket: "intake", Key: "filing.pdf"}, "application/pdf")
	if err != nil {
		t.Fatal(err)
	}
	return docID
}

func TestFullPipelineRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, err := h.store.Load(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("document status = %s, expected completed", doc.Status)
	}

	// Every stage record is done with source=work and one attempt.
	records, _ := h.store.GetAll(ctx, docID)
	if len(records) != len(domain.Stages()) {
		t.Fatalf("stage records = %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != domain.StageStatusCompleted {
			t.Errorf("stage %s status = %s", rec.Stage, rec.Status)
		}
		if rec.Source != domain.SourceWork {
			t.Errorf("stage %s source = %s", rec.Stage, rec.Source)
		}
		if rec.AttemptCount != 1 {
			t.Errorf("stage %s attempts = %d", rec.Stage, rec.AttemptCount)
		}
	}

	// Every artifact is durably persisted.
	for _, stage := range domain.Stages() {
		if _, err := h.store.GetResult(ctx, docID, stage); err != nil {
			t.Errorf("artifact for %s missing: %v", stage, err)
		}
	}

	if h.ocr.submits != 1 {
		t.Errorf("ocr submits = %d", h.ocr.submits)
	}
}

func TestReprocessServedEntirelyFromCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	firstRuns := make(map[domain.Stage]int)
	for stage, u := range h.units {
		firstRuns[stage] = u.Runs()
	}
	firstSubmits, firstPolls := h.ocr.submits, h.ocr.polls

	// Reprocess against a wiped datastore but a warm cache: swap in a fresh
	// storage holding only the document row, keep everything else.
	h.store = memory.New()
	h.docs = h.store
	if err := h.store.Create(ctx, &domain.Document{
		ID:           docID,
		Source:       domain.SourceRef{Bucket: "intake", Key: "filing.pdf"},
		ContentType:  "application/pdf",
		CurrentStage: domain.FirstStage(),
		Status:       domain.DocumentStatusIntake,
	}); err != nil {
		t.Fatal(err)
	}
	h.orch = h.buildOrch()

	if err := h.queue.Enqueue(ctx, queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: docID.String(),
		Stage:      string(domain.FirstStage()),
	}, 0); err != nil {
		t.Fatal(err)
	}
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("reprocess status = %s", doc.Status)
	}

	// No work unit ran again and the OCR service was never touched.
	for stage, u := range h.units {
		if u.Runs() != firstRuns[stage] {
			t.Errorf("stage %s re-ran: %d -> %d", stage, firstRuns[stage], u.Runs())
		}
	}
	if h.ocr.submits != firstSubmits || h.ocr.polls != firstPolls {
		t.Errorf("ocr touched on cached run: submits=%d polls=%d", h.ocr.submits, h.ocr.polls)
	}

	// Stage records show the cache as the source.
	records, _ := h.store.GetAll(ctx, docID)
	if len(records) != len(domain.Stages()) {
		t.Fatalf("stage records = %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != domain.StageStatusSkippedCacheHit {
			t.Errorf("stage %s status = %s, expected skipped_cache_hit", rec.Stage, rec.Status)
		}
		if rec.Source != domain.SourceCache {
			t.Errorf("stage %s source = %s", rec.Stage, rec.Source)
		}
	}
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.units[domain.StageSegmentation].failures = 2

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status = %s, expected completed after retries", doc.Status)
	}

	rec, _ := h.store.Get(ctx, docID, domain.StageSegmentation)
	if rec.AttemptCount != 3 {
		t.Errorf("attempts = %d, expected 3 (two failures plus the success)", rec.AttemptCount)
	}
	if h.units[domain.StageSegmentation].Runs() != 3 {
		t.Errorf("runs = %d", h.units[domain.StageSegmentation].Runs())
	}
}

func TestRetryBudgetExhaustionFailsDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.units[domain.StageSegmentation].failures = 99

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusFailed {
		t.Fatalf("status = %s, expected failed", doc.Status)
	}
	if doc.ErrorKind != domain.ErrKindTransientIO {
		t.Errorf("error kind = %s", doc.ErrorKind)
	}

	rec, _ := h.store.Get(ctx, docID, domain.StageSegmentation)
	if rec.Status != domain.StageStatusFailed {
		t.Errorf("stage status = %s", rec.Status)
	}
	if rec.AttemptCount != 3 {
		t.Errorf("attempts = %d, expected exactly the budget", rec.AttemptCount)
	}

	// Later stages never ran.
	if h.units[domain.StageEntityExtraction].Runs() != 0 {
		t.Error("downstream stage ran after failure")
	}
}

func TestValidationErrorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.units[domain.StageSegmentation].failures = 99
	h.units[domain.StageSegmentation].failWith = domain.NewValidationError(domain.StageSegmentation, errors.New("garbled input"))

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusFailed {
		t.Fatalf("status = %s", doc.Status)
	}
	if doc.ErrorKind != domain.ErrKindValidation {
		t.Errorf("error kind = %s", doc.ErrorKind)
	}
	if got := h.units[domain.StageSegmentation].Runs(); got != 1 {
		t.Errorf("runs = %d, fatal errors must not retry", got)
	}
}

func TestLockContentionReschedules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)

	// Another worker holds the document.
	if ok, _ := h.lock.TryAcquire(ctx, docID, "other-worker", time.Minute); !ok {
		t.Fatal("setup: could not take lock")
	}

	task, _ := h.queue.PopDue(ctx)
	if task == nil {
		t.Fatal("expected the intake task")
	}
	if err := h.orch.HandleTask(ctx, task); err != nil {
		t.Fatalf("contended transition must not error: %v", err)
	}

	// Nothing ran; the task went back on the queue delayed.
	if h.ocr.submits != 0 {
		t.Error("work started despite contention")
	}
	depth, _ := h.queue.Depth(ctx)
	if depth != 1 {
		t.Fatalf("queue depth = %d, expected the rescheduled task", depth)
	}

	// Once the holder releases, the rescheduled task proceeds normally.
	if _, err := h.lock.Release(ctx, docID, "other-worker"); err != nil {
		t.Fatal(err)
	}
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Errorf("status = %s", doc.Status)
	}
}

func TestCompletedTransitionWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	h.runUntilStageDone(t, ctx, docID, domain.StageSegmentation)

	writesBefore := h.store.Writes()
	runsBefore := h.units[domain.StageSegmentation].Runs()

	// A duplicate transition for the completed stage: the chain moves on via
	// a new queue task, with zero datastore writes and zero work.
	if err := h.orch.HandleTask(ctx, &queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: docID.String(),
		Stage:      string(domain.StageSegmentation),
	}); err != nil {
		t.Fatal(err)
	}

	if h.store.Writes() != writesBefore {
		t.Errorf("datastore writes changed: %d -> %d", writesBefore, h.store.Writes())
	}
	if h.units[domain.StageSegmentation].Runs() != runsBefore {
		t.Error("work unit re-ran")
	}

	// The rest of the pipeline still completes.
	h.drain(t, ctx)
	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Errorf("status = %s", doc.Status)
	}
}

func TestCrashResumeSkipsCompletedStages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	h.runUntilStageDone(t, ctx, docID, domain.StageEntityExtraction)

	runsBefore := map[domain.Stage]int{}
	for stage, u := range h.units {
		runsBefore[stage] = u.Runs()
	}

	// Recovery after a crash re-enqueues a transition for a stage that had
	// already committed.
	if err := h.orch.HandleTask(ctx, &queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: docID.String(),
		Stage:      string(domain.StageEntityExtraction),
	}); err != nil {
		t.Fatal(err)
	}
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status = %s", doc.Status)
	}
	for _, stage := range []domain.Stage{domain.StageSegmentation, domain.StageEntityExtraction} {
		if h.units[stage].Runs() != runsBefore[stage] {
			t.Errorf("completed stage %s re-ran", stage)
		}
	}
}

func TestOutOfOrderTransitionWaits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)

	// A finalization task arrives while nothing has completed.
	if err := h.orch.HandleTask(ctx, &queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: docID.String(),
		Stage:      string(domain.StageFinalization),
	}); err != nil {
		t.Fatal(err)
	}

	if h.units[domain.StageFinalization].Runs() != 0 {
		t.Error("finalization ran before prior stages completed")
	}

	// The premature task was rescheduled, and the pipeline still completes.
	h.drain(t, ctx)
	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Errorf("status = %s", doc.Status)
	}
}

func TestTerminalDocumentDropsTasks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	if err := h.store.UpdateStatus(ctx, docID, domain.DocumentStatusFailed, domain.ErrKindValidation, "operator cancelled"); err != nil {
		t.Fatal(err)
	}

	writesBefore := h.store.Writes()
	h.drain(t, ctx)

	if h.store.Writes() != writesBefore {
		t.Error("terminal document was written to")
	}
	if h.ocr.submits != 0 {
		t.Error("work started for a terminal document")
	}
}

func TestUnknownDocumentDropsTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	err := h.orch.HandleTask(ctx, &queue.Task{
		Name:       queue.TaskProcessStage,
		DocumentID: domain.NewDocumentID().String(),
		Stage:      string(domain.StageExtraction),
	})
	if err != nil {
		t.Fatalf("unknown document must be dropped, not errored: %v", err)
	}
	depth, _ := h.queue.Depth(ctx)
	if depth != 0 {
		t.Error("unknown document task was rescheduled")
	}
}

func TestMalformedTaskRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	if err := h.orch.HandleTask(ctx, &queue.Task{Name: queue.TaskProcessStage, DocumentID: "not-a-uuid", Stage: "extraction"}); err == nil {
		t.Error("expected error for malformed document id")
	}
	if err := h.orch.HandleTask(ctx, &queue.Task{Name: queue.TaskProcessStage, DocumentID: domain.NewDocumentID().String(), Stage: "bogus"}); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestOCRSubmitRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.ocr.failsLeft = 2

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status = %s", doc.Status)
	}
	if h.ocr.submits != 3 {
		t.Errorf("submits = %d, expected 2 failures plus the success", h.ocr.submits)
	}
	rec, _ := h.store.Get(ctx, docID, domain.StageExtraction)
	if rec.AttemptCount != 3 {
		t.Errorf("extraction attempts = %d", rec.AttemptCount)
	}
}

func TestOCRTimeoutResubmitsOnceThenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	// Every poll finds the wait budget already exhausted.
	h.pollMaxWait = -time.Nanosecond
	h.orch = h.buildOrch()

	docID := h.intake(t, ctx)
	h.drain(t, ctx)

	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusFailed {
		t.Fatalf("status = %s, expected failed", doc.Status)
	}
	if doc.ErrorKind != domain.ErrKindExternalService {
		t.Errorf("error kind = %s, timeout must surface as external_service", doc.ErrorKind)
	}
	if h.ocr.submits != 2 {
		t.Errorf("submits = %d, a timed-out job is resubmitted exactly once", h.ocr.submits)
	}
	if h.ocr.polls != 0 {
		t.Errorf("polls = %d, the budget check precedes polling", h.ocr.polls)
	}
}

// flakyDocs fails a scripted number of Load calls before delegating.
type flakyDocs struct {
	storage.DocumentRepository
	mu        sync.Mutex
	failLoads int
}

func (f *flakyDocs) Load(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	f.mu.Lock()
	fail := f.failLoads > 0
	if fail {
		f.failLoads--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.DocumentRepository.Load(ctx, id)
}

func TestDatastoreLoadBlipReschedulesTransition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	flaky := &flakyDocs{DocumentRepository: h.store, failLoads: 1}
	h.docs = flaky
	h.orch = h.buildOrch()

	docID := h.intake(t, ctx)

	// The first transition hits the load failure; the task must go back on
	// the queue instead of being dropped.
	task, _ := h.queue.PopDue(ctx)
	if task == nil {
		t.Fatal("expected the intake task")
	}
	if err := h.orch.HandleTask(ctx, task); err != nil {
		t.Fatalf("load blip must reschedule, not error: %v", err)
	}
	depth, _ := h.queue.Depth(ctx)
	if depth != 1 {
		t.Fatalf("queue depth = %d, expected the rescheduled task", depth)
	}

	// The retry finds the datastore healthy and the document completes.
	h.drain(t, ctx)
	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusCompleted {
		t.Errorf("status = %s", doc.Status)
	}
}

func TestLateResultForCancelledDocumentDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	docID := h.intake(t, ctx)
	h.runUntilStageDone(t, ctx, docID, domain.StageExtraction)

	// The document is cancelled while a segmentation task is in flight. The
	// work unit itself cancels the document mid-run to model the race.
	h.units[domain.StageSegmentation].payload = func(ctx context.Context, doc *domain.Document, prior stages.ArtifactLoader) (domain.StagePayload, error) {
		if err := h.store.UpdateStatus(ctx, docID, domain.DocumentStatusFailed, domain.ErrKindCancelled, "cancelled by operator"); err != nil {
			return nil, err
		}
		return &domain.SegmentationResult{Chunks: []domain.Chunk{{Index: 0, Text: "late chunk"}}}, nil
	}

	h.drain(t, ctx)

	// The late result was not committed.
	if _, err := h.store.GetResult(ctx, docID, domain.StageSegmentation); err == nil {
		t.Error("late result was persisted for a cancelled document")
	}
	rec, err := h.store.Get(ctx, docID, domain.StageSegmentation)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status.Done() {
		t.Errorf("segmentation status = %s on a cancelled document", rec.Status)
	}
	doc, _ := h.store.Load(ctx, docID)
	if doc.Status != domain.DocumentStatusFailed {
		t.Errorf("document status = %s", doc.Status)
	}
}
