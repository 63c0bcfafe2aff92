package domain

import "fmt"

// StagePayload is the tagged result artifact a stage produces. Each stage has
// exactly one payload type; the orchestrator validates the payload before it
// is persisted or cached.
type StagePayload interface {
	Kind() Stage
	Validate() error
}

// Chunk is one segment of extracted document text.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EntityMention is a raw, unresolved entity occurrence inside a chunk.
type EntityMention struct {
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// CanonicalEntity is the deduplicated representation of one or more mentions.
type CanonicalEntity struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Mentions []int    `json:"mentions"` // indexes into the mention list
	Aliases  []string `json:"aliases,omitempty"`
}

// Relationship links two canonical entities that co-occur in a chunk.
type Relationship struct {
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
	ChunkIndex int    `json:"chunk_index"`
	Kind       string `json:"kind"`
}

// ExtractionResult is the extraction stage artifact (OCR output).
type ExtractionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	PageCount  int     `json:"page_count"`
}

func (ExtractionResult) Kind() Stage { return StageExtraction }

func (r ExtractionResult) Validate() error {
	if r.Text == "" {
		return NewValidationError(StageExtraction, fmt.Errorf("extraction produced empty text"))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return NewValidationError(StageExtraction, fmt.Errorf("confidence %f out of range", r.Confidence))
	}
	return nil
}

// SegmentationResult is the segmentation stage artifact.
type SegmentationResult struct {
	Chunks []Chunk `json:"chunks"`
}

func (SegmentationResult) Kind() Stage { return StageSegmentation }

func (r SegmentationResult) Validate() error {
	if len(r.Chunks) == 0 {
		return NewValidationError(StageSegmentation, fmt.Errorf("segmentation produced no chunks"))
	}
	for _, c := range r.Chunks {
		if c.Text == "" {
			return NewValidationError(StageSegmentation, fmt.Errorf("chunk %d is empty", c.Index))
		}
	}
	return nil
}

// EntityExtractionResult is the entity extraction stage artifact.
type EntityExtractionResult struct {
	Mentions []EntityMention `json:"mentions"`
}

func (EntityExtractionResult) Kind() Stage { return StageEntityExtraction }

func (r EntityExtractionResult) Validate() error {
	for i, m := range r.Mentions {
		if m.Text == "" {
			return NewValidationError(StageEntityExtraction, fmt.Errorf("mention %d has empty text", i))
		}
	}
	return nil
}

// EntityResolutionResult is the entity resolution stage artifact.
type EntityResolutionResult struct {
	Entities []CanonicalEntity `json:"entities"`
}

func (EntityResolutionResult) Kind() Stage { return StageEntityResolution }

func (r EntityResolutionResult) Validate() error {
	seen := make(map[string]struct{}, len(r.Entities))
	for _, e := range r.Entities {
		if e.ID == "" || e.Name == "" {
			return NewValidationError(StageEntityResolution, fmt.Errorf("entity missing id or name"))
		}
		if _, dup := seen[e.ID]; dup {
			return NewValidationError(StageEntityResolution, fmt.Errorf("duplicate entity id %s", e.ID))
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// RelationshipResult is the relationship building stage artifact.
type RelationshipResult struct {
	Relationships []Relationship `json:"relationships"`
}

func (RelationshipResult) Kind() Stage { return StageRelationshipBuilding }

func (r RelationshipResult) Validate() error {
	for i, rel := range r.Relationships {
		if rel.SourceID == "" || rel.TargetID == "" {
			return NewValidationError(StageRelationshipBuilding, fmt.Errorf("relationship %d missing endpoint", i))
		}
		if rel.SourceID == rel.TargetID {
			return NewValidationError(StageRelationshipBuilding, fmt.Errorf("relationship %d is self-referential", i))
		}
	}
	return nil
}

// FinalizationResult summarizes the finished pipeline run.
type FinalizationResult struct {
	ChunkCount        int `json:"chunk_count"`
	MentionCount      int `json:"mention_count"`
	EntityCount       int `json:"entity_count"`
	RelationshipCount int `json:"relationship_count"`
}

func (FinalizationResult) Kind() Stage { return StageFinalization }

func (r FinalizationResult) Validate() error {
	if r.ChunkCount < 0 || r.EntityCount < 0 {
		return NewValidationError(StageFinalization, fmt.Errorf("negative summary counts"))
	}
	return nil
}

// PayloadFor returns a zero value of the payload type for a stage, used to
// decode cached or persisted artifacts back into their concrete type.
func PayloadFor(stage Stage) (StagePayload, error) {
	switch stage {
	case StageExtraction:
		return &ExtractionResult{}, nil
	case StageSegmentation:
		return &SegmentationResult{}, nil
	case StageEntityExtraction:
		return &EntityExtractionResult{}, nil
	case StageEntityResolution:
		return &EntityResolutionResult{}, nil
	case StageRelationshipBuilding:
		return &RelationshipResult{}, nil
	case StageFinalization:
		return &FinalizationResult{}, nil
	default:
		return nil, fmt.Errorf("no payload type for stage %q", stage)
	}
}
