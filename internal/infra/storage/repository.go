package storage

import (
	"context"
	"errors"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

var (
	// ErrDocumentNotFound is returned when a document doesn't exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrStageRecordNotFound is returned when no record exists for a
	// (document, stage) pair.
	ErrStageRecordNotFound = errors.New("stage record not found")
	// ErrResultNotFound is returned when no persisted artifact exists for a
	// (document, stage) pair.
	ErrResultNotFound = errors.New("stage result not found")
)

// DocumentRepository handles document storage operations. The datastore is
// the single source of truth; writes are last-write-wins per document because
// only the lock holder writes at any moment.
type DocumentRepository interface {
	// Create inserts a new document at intake.
	Create(ctx context.Context, doc *domain.Document) error

	// Load retrieves a document by id.
	Load(ctx context.Context, id domain.DocumentID) (*domain.Document, error)

	// UpdateStatus sets the document status plus error detail for failures.
	UpdateStatus(ctx context.Context, id domain.DocumentID, status domain.DocumentStatus, kind domain.ErrorKind, msg string) error

	// UpdateCurrentStage advances the document's stage pointer.
	UpdateCurrentStage(ctx context.Context, id domain.DocumentID, stage domain.Stage) error

	// ListByStatus returns documents in a given status, for the admin CLI.
	ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error)
}

// StageRepository handles the durable per-(document, stage) status records.
type StageRepository interface {
	// Get retrieves the record for one (document, stage) pair.
	Get(ctx context.Context, id domain.DocumentID, stage domain.Stage) (*domain.StageRecord, error)

	// GetAll returns every record for a document, for audit and resume.
	GetAll(ctx context.Context, id domain.DocumentID) ([]*domain.StageRecord, error)

	// Upsert creates or replaces a record.
	Upsert(ctx context.Context, rec *domain.StageRecord) error

	// MarkStatus transitions a record's status, recording error detail and
	// completion source where relevant.
	MarkStatus(ctx context.Context, id domain.DocumentID, stage domain.Stage, status domain.StageStatus, source domain.CompletedSource, errDetail string) error

	// IncrementAttempt bumps the attempt counter and returns the new value.
	IncrementAttempt(ctx context.Context, id domain.DocumentID, stage domain.Stage) (int, error)

	// SetExternalJobID records the external job driving an async stage.
	SetExternalJobID(ctx context.Context, id domain.DocumentID, stage domain.Stage, jobID string) error
}

// StageResultRepository persists stage artifacts. A stage only counts as done
// once its artifact is durably stored here; the cache is advisory.
type StageResultRepository interface {
	// SaveResult stores the serialized artifact for a (document, stage).
	SaveResult(ctx context.Context, id domain.DocumentID, stage domain.Stage, payload []byte) error

	// GetResult loads the serialized artifact for a (document, stage).
	GetResult(ctx context.Context, id domain.DocumentID, stage domain.Stage) ([]byte, error)
}
