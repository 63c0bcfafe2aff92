package memory

import (
	"context"
	"sync"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
)

// Storage is an in-memory implementation of every repository interface, used
// by tests and local development.
type Storage struct {
	mu        sync.RWMutex
	documents map[domain.DocumentID]domain.Document
	stages    map[stageKey]domain.StageRecord
	results   map[stageKey][]byte

	// WriteCount tracks mutating calls, for idempotence assertions.
	WriteCount int
}

type stageKey struct {
	id    domain.DocumentID
	stage domain.Stage
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		documents: make(map[domain.DocumentID]domain.Document),
		stages:    make(map[stageKey]domain.StageRecord),
		results:   make(map[stageKey][]byte),
	}
}

// --- DocumentRepository ---

func (s *Storage) Create(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCount++
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	s.documents[doc.ID] = *doc
	return nil
}

func (s *Storage) Load(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, storage.ErrDocumentNotFound
	}
	out := doc
	return &out, nil
}

func (s *Storage) UpdateStatus(ctx context.Context, id domain.DocumentID, status domain.DocumentStatus, kind domain.ErrorKind, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return storage.ErrDocumentNotFound
	}
	s.WriteCount++
	doc.Status = status
	doc.ErrorKind = kind
	doc.ErrorMessage = msg
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

func (s *Storage) UpdateCurrentStage(ctx context.Context, id domain.DocumentID, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return storage.ErrDocumentNotFound
	}
	s.WriteCount++
	doc.CurrentStage = stage
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

func (s *Storage) ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Document
	for _, doc := range s.documents {
		if doc.Status != status {
			continue
		}
		d := doc
		out = append(out, &d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- StageRepository ---

func (s *Storage) Get(ctx context.Context, id domain.DocumentID, stage domain.Stage) (*domain.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.stages[stageKey{id, stage}]
	if !ok {
		return nil, storage.ErrStageRecordNotFound
	}
	out := rec
	return &out, nil
}

func (s *Storage) GetAll(ctx context.Context, id domain.DocumentID) ([]*domain.StageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.StageRecord
	for _, stage := range domain.Stages() {
		if rec, ok := s.stages[stageKey{id, stage}]; ok {
			r := rec
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *Storage) Upsert(ctx context.Context, rec *domain.StageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCount++
	s.stages[stageKey{rec.DocumentID, rec.Stage}] = *rec
	return nil
}

func (s *Storage) MarkStatus(ctx context.Context, id domain.DocumentID, stage domain.Stage, status domain.StageStatus, source domain.CompletedSource, errDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey{id, stage}
	rec, ok := s.stages[key]
	if !ok {
		rec = domain.StageRecord{DocumentID: id, Stage: stage}
	}
	s.WriteCount++
	rec.Status = status
	rec.Source = source
	rec.ErrorDetail = errDetail
	switch status {
	case domain.StageStatusRunning:
		rec.StartedAt = time.Now()
	case domain.StageStatusCompleted, domain.StageStatusSkippedCacheHit, domain.StageStatusFailed:
		rec.CompletedAt = time.Now()
	}
	s.stages[key] = rec
	return nil
}

func (s *Storage) IncrementAttempt(ctx context.Context, id domain.DocumentID, stage domain.Stage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey{id, stage}
	rec, ok := s.stages[key]
	if !ok {
		rec = domain.StageRecord{DocumentID: id, Stage: stage, Status: domain.StageStatusPending}
	}
	s.WriteCount++
	rec.AttemptCount++
	s.stages[key] = rec
	return rec.AttemptCount, nil
}

func (s *Storage) SetExternalJobID(ctx context.Context, id domain.DocumentID, stage domain.Stage, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stageKey{id, stage}
	rec, ok := s.stages[key]
	if !ok {
		return storage.ErrStageRecordNotFound
	}
	s.WriteCount++
	rec.ExternalJobID = jobID
	s.stages[key] = rec
	return nil
}

// --- StageResultRepository ---

func (s *Storage) SaveResult(ctx context.Context, id domain.DocumentID, stage domain.Stage, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteCount++
	s.results[stageKey{id, stage}] = append([]byte(nil), payload...)
	return nil
}

func (s *Storage) GetResult(ctx context.Context, id domain.DocumentID, stage domain.Stage) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.results[stageKey{id, stage}]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	return append([]byte(nil), data...), nil
}

// Writes returns the mutating call count, for idempotence tests.
func (s *Storage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WriteCount
}
