package stages

import (
	"context"
	"fmt"
	"sort"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// RelationshipBuilding links canonical entities that co-occur in a chunk.
type RelationshipBuilding struct{}

// NewRelationshipBuilding creates the relationship building stage.
func NewRelationshipBuilding() *RelationshipBuilding {
	return &RelationshipBuilding{}
}

func (r *RelationshipBuilding) Stage() domain.Stage {
	return domain.StageRelationshipBuilding
}

func (r *RelationshipBuilding) Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error) {
	resPayload, err := prior(ctx, domain.StageEntityResolution)
	if err != nil {
		return nil, err
	}
	resolution, ok := resPayload.(*domain.EntityResolutionResult)
	if !ok {
		return nil, domain.NewValidationError(domain.StageRelationshipBuilding,
			fmt.Errorf("expected entity resolution result, got %T", resPayload))
	}

	extPayload, err := prior(ctx, domain.StageEntityExtraction)
	if err != nil {
		return nil, err
	}
	extraction, ok := extPayload.(*domain.EntityExtractionResult)
	if !ok {
		return nil, domain.NewValidationError(domain.StageRelationshipBuilding,
			fmt.Errorf("expected entity extraction result, got %T", extPayload))
	}

	// Map each chunk to the set of canonical entities mentioned in it.
	chunkEntities := make(map[int][]string)
	for _, entity := range resolution.Entities {
		for _, mentionIdx := range entity.Mentions {
			if mentionIdx < 0 || mentionIdx >= len(extraction.Mentions) {
				continue
			}
			chunk := extraction.Mentions[mentionIdx].ChunkIndex
			chunkEntities[chunk] = appendUnique(chunkEntities[chunk], entity.ID)
		}
	}

	seen := make(map[string]struct{})
	var rels []domain.Relationship
	chunks := sortedKeys(chunkEntities)
	for _, chunk := range chunks {
		ids := chunkEntities[chunk]
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pair := ids[i] + "|" + ids[j]
				if _, dup := seen[pair]; dup {
					continue
				}
				seen[pair] = struct{}{}
				rels = append(rels, domain.Relationship{
					SourceID:   ids[i],
					TargetID:   ids[j],
					ChunkIndex: chunk,
					Kind:       "co_occurrence",
				})
			}
		}
	}

	return &domain.RelationshipResult{Relationships: rels}, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func sortedKeys(m map[int][]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
