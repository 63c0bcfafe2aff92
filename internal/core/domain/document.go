package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentID is the canonical identifier for a document. It wraps uuid.UUID so
// that raw strings from queue payloads, cache keys, and CLI args are parsed
// exactly once at the boundary.
type DocumentID struct {
	uuid.UUID
}

// NewDocumentID generates a fresh document identifier.
func NewDocumentID() DocumentID {
	return DocumentID{uuid.New()}
}

// ParseDocumentID parses a string form back into a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, fmt.Errorf("invalid document id %q: %w", s, err)
	}
	return DocumentID{id}, nil
}

// SourceRef points at the original file in object storage. The orchestrator
// never reads the bytes; the reference is handed to the OCR collaborator as-is.
type SourceRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r SourceRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

type DocumentStatus string

const (
	DocumentStatusIntake     DocumentStatus = "pending_intake"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status is final. Terminal documents are never
// mutated again by the orchestrator.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is the per-document pipeline state. Created at intake, mutated only
// by the orchestrator while holding the document lock.
type Document struct {
	ID           DocumentID
	Source       SourceRef
	ContentType  string
	CurrentStage Stage
	Status       DocumentStatus
	ErrorKind    ErrorKind
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
