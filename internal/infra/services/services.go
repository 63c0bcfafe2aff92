package services

import (
	"context"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// OCRJobState is the external OCR service's view of a job.
type OCRJobState string

const (
	OCRJobRunning   OCRJobState = "running"
	OCRJobSucceeded OCRJobState = "succeeded"
	OCRJobFailed    OCRJobState = "failed"
)

// OCRJobStatus is one poll response from the OCR service.
type OCRJobStatus struct {
	State      OCRJobState
	Text       string
	Confidence float64
	Pages      int
	Error      string
}

// OCRClient is the text extraction collaborator. Jobs are long-running:
// Submit returns immediately with a job id and Poll is driven by the async
// job poller.
type OCRClient interface {
	Submit(ctx context.Context, ref domain.SourceRef, contentType string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (*OCRJobStatus, error)
}

// EntityExtractor is the entity extraction/resolution collaborator, invoked
// synchronously as a stage work unit.
type EntityExtractor interface {
	// Extract finds raw entity mentions in one chunk of text.
	Extract(ctx context.Context, chunkText string) ([]domain.EntityMention, error)

	// Resolve deduplicates mentions into canonical entities.
	Resolve(ctx context.Context, mentions []domain.EntityMention) ([]domain.CanonicalEntity, error)
}
