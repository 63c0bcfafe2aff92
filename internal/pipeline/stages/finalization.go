package stages

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
)

// Finalization verifies every prior stage completed and produces the run
// summary. It is the only stage that reads StageRecords, because its job is
// auditing the pipeline itself.
type Finalization struct {
	stageRepo storage.StageRepository
}

// NewFinalization creates the finalization stage.
func NewFinalization(stageRepo storage.StageRepository) *Finalization {
	return &Finalization{stageRepo: stageRepo}
}

func (f *Finalization) Stage() domain.Stage {
	return domain.StageFinalization
}

func (f *Finalization) Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error) {
	for _, stage := range domain.Stages() {
		if stage == domain.StageFinalization {
			break
		}
		rec, err := f.stageRepo.Get(ctx, doc.ID, stage)
		if err != nil {
			return nil, domain.NewTransientError(domain.StageFinalization,
				fmt.Errorf("load record for %s: %w", stage, err))
		}
		if !rec.Status.Done() {
			return nil, domain.NewValidationError(domain.StageFinalization,
				fmt.Errorf("stage %s is %s, cannot finalize", stage, rec.Status))
		}
	}

	summary := &domain.FinalizationResult{}

	if p, err := prior(ctx, domain.StageSegmentation); err == nil {
		if seg, ok := p.(*domain.SegmentationResult); ok {
			summary.ChunkCount = len(seg.Chunks)
		}
	}
	if p, err := prior(ctx, domain.StageEntityExtraction); err == nil {
		if ext, ok := p.(*domain.EntityExtractionResult); ok {
			summary.MentionCount = len(ext.Mentions)
		}
	}
	if p, err := prior(ctx, domain.StageEntityResolution); err == nil {
		if res, ok := p.(*domain.EntityResolutionResult); ok {
			summary.EntityCount = len(res.Entities)
		}
	}
	if p, err := prior(ctx, domain.StageRelationshipBuilding); err == nil {
		if rel, ok := p.(*domain.RelationshipResult); ok {
			summary.RelationshipCount = len(rel.Relationships)
		}
	}

	return summary, nil
}
