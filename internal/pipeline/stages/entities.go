package stages

import (
	"context"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/services"
)

// EntityExtraction invokes the entity model once per chunk and tags each
// mention with its chunk index.
type EntityExtraction struct {
	extractor services.EntityExtractor
}

// NewEntityExtraction creates the entity extraction stage.
func NewEntityExtraction(extractor services.EntityExtractor) *EntityExtraction {
	return &EntityExtraction{extractor: extractor}
}

func (e *EntityExtraction) Stage() domain.Stage {
	return domain.StageEntityExtraction
}

func (e *EntityExtraction) Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error) {
	payload, err := prior(ctx, domain.StageSegmentation)
	if err != nil {
		return nil, err
	}
	seg, ok := payload.(*domain.SegmentationResult)
	if !ok {
		return nil, domain.NewValidationError(domain.StageEntityExtraction,
			fmt.Errorf("expected segmentation result, got %T", payload))
	}

	var mentions []domain.EntityMention
	for _, chunk := range seg.Chunks {
		found, err := e.extractor.Extract(ctx, chunk.Text)
		if err != nil {
			return nil, domain.NewExternalServiceError(domain.StageEntityExtraction,
				fmt.Errorf("extract chunk %d: %w", chunk.Index, err))
		}
		for _, m := range found {
			m.ChunkIndex = chunk.Index
			mentions = append(mentions, m)
		}
	}

	return &domain.EntityExtractionResult{Mentions: mentions}, nil
}

// EntityResolution deduplicates all mentions into canonical entities.
type EntityResolution struct {
	extractor services.EntityExtractor
}

// NewEntityResolution creates the entity resolution stage.
func NewEntityResolution(extractor services.EntityExtractor) *EntityResolution {
	return &EntityResolution{extractor: extractor}
}

func (e *EntityResolution) Stage() domain.Stage {
	return domain.StageEntityResolution
}

func (e *EntityResolution) Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error) {
	payload, err := prior(ctx, domain.StageEntityExtraction)
	if err != nil {
		return nil, err
	}
	ext, ok := payload.(*domain.EntityExtractionResult)
	if !ok {
		return nil, domain.NewValidationError(domain.StageEntityResolution,
			fmt.Errorf("expected entity extraction result, got %T", payload))
	}

	if len(ext.Mentions) == 0 {
		return &domain.EntityResolutionResult{}, nil
	}

	entities, err := e.extractor.Resolve(ctx, ext.Mentions)
	if err != nil {
		return nil, domain.NewExternalServiceError(domain.StageEntityResolution,
			fmt.Errorf("resolve mentions: %w", err))
	}

	// Drop mention references the model invented.
	for i := range entities {
		valid := entities[i].Mentions[:0]
		for _, idx := range entities[i].Mentions {
			if idx >= 0 && idx < len(ext.Mentions) {
				valid = append(valid, idx)
			}
		}
		entities[i].Mentions = valid
	}

	return &domain.EntityResolutionResult{Entities: entities}, nil
}
