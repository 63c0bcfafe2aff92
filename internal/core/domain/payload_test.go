package domain

import "testing"

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload StagePayload
		wantErr bool
	}{
		{
			name:    "valid extraction",
			payload: ExtractionResult{Text: "some text", Confidence: 0.95, PageCount: 3},
		},
		{
			name:    "extraction empty text",
			payload: ExtractionResult{Confidence: 0.9},
			wantErr: true,
		},
		{
			name:    "extraction confidence out of range",
			payload: ExtractionResult{Text: "x", Confidence: 1.5},
			wantErr: true,
		},
		{
			name:    "valid segmentation",
			payload: SegmentationResult{Chunks: []Chunk{{Index: 0, Text: "a"}}},
		},
		{
			name:    "segmentation no chunks",
			payload: SegmentationResult{},
			wantErr: true,
		},
		{
			name:    "segmentation empty chunk",
			payload: SegmentationResult{Chunks: []Chunk{{Index: 0, Text: ""}}},
			wantErr: true,
		},
		{
			name:    "entity extraction empty mention list is fine",
			payload: EntityExtractionResult{},
		},
		{
			name:    "entity extraction empty mention text",
			payload: EntityExtractionResult{Mentions: []EntityMention{{Type: "person"}}},
			wantErr: true,
		},
		{
			name: "resolution duplicate entity id",
			payload: EntityResolutionResult{Entities: []CanonicalEntity{
				{ID: "e1", Name: "Acme Corp"},
				{ID: "e1", Name: "Acme Corporation"},
			}},
			wantErr: true,
		},
		{
			name:    "self-referential relationship",
			payload: RelationshipResult{Relationships: []Relationship{{SourceID: "e1", TargetID: "e1", Kind: "co_occurrence"}}},
			wantErr: true,
		},
		{
			name:    "valid finalization",
			payload: FinalizationResult{ChunkCount: 4, EntityCount: 2},
		},
		{
			name:    "finalization negative count",
			payload: FinalizationResult{ChunkCount: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPayloadFor(t *testing.T) {
	for _, stage := range Stages() {
		payload, err := PayloadFor(stage)
		if err != nil {
			t.Fatalf("PayloadFor(%s) failed: %v", stage, err)
		}
		if payload.Kind() != stage {
			t.Errorf("PayloadFor(%s).Kind() = %s", stage, payload.Kind())
		}
	}
	if _, err := PayloadFor("embedding"); err == nil {
		t.Error("expected error for unknown stage")
	}
}
