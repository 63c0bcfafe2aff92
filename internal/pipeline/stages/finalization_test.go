package stages

import (
	"context"
	"testing"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage/memory"
)

func markDone(t *testing.T, store *memory.Storage, id domain.DocumentID, stage domain.Stage, status domain.StageStatus) {
	t.Helper()
	if err := store.MarkStatus(context.Background(), id, stage, status, domain.SourceWork, ""); err != nil {
		t.Fatal(err)
	}
}

func TestFinalizationSummarizesRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	doc := &domain.Document{ID: domain.NewDocumentID()}

	for _, stage := range domain.Stages() {
		if stage == domain.StageFinalization {
			break
		}
		markDone(t, store, doc.ID, stage, domain.StageStatusCompleted)
	}

	fin := NewFinalization(store)
	payload, err := fin.Run(ctx, doc, priorFrom(map[domain.Stage]domain.StagePayload{
		domain.StageSegmentation: &domain.SegmentationResult{Chunks: []domain.Chunk{
			{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"},
		}},
		domain.StageEntityExtraction: &domain.EntityExtractionResult{Mentions: []domain.EntityMention{
			{Text: "x"}, {Text: "y"},
		}},
		domain.StageEntityResolution: &domain.EntityResolutionResult{Entities: []domain.CanonicalEntity{
			{ID: "e1", Name: "x"},
		}},
		domain.StageRelationshipBuilding: &domain.RelationshipResult{},
	}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	summary := payload.(*domain.FinalizationResult)
	if summary.ChunkCount != 3 || summary.MentionCount != 2 || summary.EntityCount != 1 || summary.RelationshipCount != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestFinalizationAcceptsCacheSatisfiedStages(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	doc := &domain.Document{ID: domain.NewDocumentID()}

	for _, stage := range domain.Stages() {
		if stage == domain.StageFinalization {
			break
		}
		markDone(t, store, doc.ID, stage, domain.StageStatusSkippedCacheHit)
	}

	fin := NewFinalization(store)
	if _, err := fin.Run(ctx, doc, priorFrom(nil)); err != nil {
		t.Errorf("cache-satisfied stages should finalize: %v", err)
	}
}

func TestFinalizationRejectsIncompleteRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	doc := &domain.Document{ID: domain.NewDocumentID()}

	for _, stage := range domain.Stages() {
		if stage == domain.StageFinalization {
			break
		}
		status := domain.StageStatusCompleted
		if stage == domain.StageEntityResolution {
			status = domain.StageStatusFailed
		}
		markDone(t, store, doc.ID, stage, status)
	}

	fin := NewFinalization(store)
	_, err := fin.Run(ctx, doc, priorFrom(nil))
	if err == nil {
		t.Fatal("expected error when a prior stage is not done")
	}
	if domain.KindOf(err) != domain.ErrKindValidation {
		t.Errorf("kind = %s", domain.KindOf(err))
	}
}
