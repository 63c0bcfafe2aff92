package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// fakeExtractor scripts the entity model.
type fakeExtractor struct {
	extractByChunk map[string][]domain.EntityMention
	extractErr     error
	resolved       []domain.CanonicalEntity
	resolveErr     error
	resolveCalls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, chunkText string) ([]domain.EntityMention, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extractByChunk[chunkText], nil
}

func (f *fakeExtractor) Resolve(ctx context.Context, mentions []domain.EntityMention) ([]domain.CanonicalEntity, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.resolved, nil
}

func TestEntityExtractionTagsChunkIndex(t *testing.T) {
	fake := &fakeExtractor{extractByChunk: map[string][]domain.EntityMention{
		"first chunk":  {{Text: "Acme Corp", Type: "organization", Confidence: 0.9}},
		"second chunk": {{Text: "Jane Smith", Type: "person", Confidence: 0.8}},
	}}
	ee := NewEntityExtraction(fake)
	doc := &domain.Document{ID: domain.NewDocumentID()}

	payload, err := ee.Run(context.Background(), doc, priorFrom(map[domain.Stage]domain.StagePayload{
		domain.StageSegmentation: &domain.SegmentationResult{Chunks: []domain.Chunk{
			{Index: 0, Text: "first chunk"},
			{Index: 1, Text: "second chunk"},
		}},
	}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	result := payload.(*domain.EntityExtractionResult)

	if len(result.Mentions) != 2 {
		t.Fatalf("mentions = %+v", result.Mentions)
	}
	if result.Mentions[0].ChunkIndex != 0 || result.Mentions[1].ChunkIndex != 1 {
		t.Errorf("chunk indexes = %d, %d", result.Mentions[0].ChunkIndex, result.Mentions[1].ChunkIndex)
	}
	if result.Mentions[0].Text != "Acme Corp" || result.Mentions[1].Text != "Jane Smith" {
		t.Errorf("mention texts = %q, %q", result.Mentions[0].Text, result.Mentions[1].Text)
	}
}

func TestEntityExtractionModelError(t *testing.T) {
	fake := &fakeExtractor{extractErr: errors.New("rate limited")}
	ee := NewEntityExtraction(fake)
	doc := &domain.Document{ID: domain.NewDocumentID()}

	_, err := ee.Run(context.Background(), doc, priorFrom(map[domain.Stage]domain.StagePayload{
		domain.StageSegmentation: &domain.SegmentationResult{Chunks: []domain.Chunk{{Index: 0, Text: "x"}}},
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.KindOf(err) != domain.ErrKindExternalService {
		t.Errorf("kind = %s", domain.KindOf(err))
	}
}

func TestEntityResolutionDropsInventedMentions(t *testing.T) {
	fake := &fakeExtractor{resolved: []domain.CanonicalEntity{
		{ID: "e1", Name: "Acme Corp", Type: "organization", Mentions: []int{0, 7, -2}},
	}}
	er := NewEntityResolution(fake)
	doc := &domain.Document{ID: domain.NewDocumentID()}

	payload, err := er.Run(context.Background(), doc, priorFrom(map[domain.Stage]domain.StagePayload{
		domain.StageEntityExtraction: &domain.EntityExtractionResult{Mentions: []domain.EntityMention{
			{ChunkIndex: 0, Text: "Acme Corp"},
		}},
	}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	result := payload.(*domain.EntityResolutionResult)

	if len(result.Entities) != 1 {
		t.Fatalf("entities = %+v", result.Entities)
	}
	if got := result.Entities[0].Mentions; len(got) != 1 || got[0] != 0 {
		t.Errorf("mentions = %v, expected only the real index", got)
	}
}

func TestEntityResolutionSkipsModelWhenNoMentions(t *testing.T) {
	fake := &fakeExtractor{}
	er := NewEntityResolution(fake)
	doc := &domain.Document{ID: domain.NewDocumentID()}

	payload, err := er.Run(context.Background(), doc, priorFrom(map[domain.Stage]domain.StagePayload{
		domain.StageEntityExtraction: &domain.EntityExtractionResult{},
	}))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fake.resolveCalls != 0 {
		t.Error("resolve must not be called with zero mentions")
	}
	if result := payload.(*domain.EntityResolutionResult); len(result.Entities) != 0 {
		t.Errorf("entities = %+v", result.Entities)
	}
}
