package domain

import (
	"fmt"
	"time"
)

// Stage is one step of the document pipeline. Stages run strictly in the
// order listed by Stages().
type Stage string

const (
	StageExtraction           Stage = "extraction"
	StageSegmentation         Stage = "segmentation"
	StageEntityExtraction     Stage = "entity_extraction"
	StageEntityResolution     Stage = "entity_resolution"
	StageRelationshipBuilding Stage = "relationship_building"
	StageFinalization         Stage = "finalization"
)

var stageOrder = []Stage{
	StageExtraction,
	StageSegmentation,
	StageEntityExtraction,
	StageEntityResolution,
	StageRelationshipBuilding,
	StageFinalization,
}

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// FirstStage is the entry point of the pipeline.
func FirstStage() Stage {
	return stageOrder[0]
}

// Next returns the stage after s, or ("", false) if s is the last stage.
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Prev returns the stage before s, or ("", false) if s is the first stage.
func (s Stage) Prev() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i > 0 {
			return stageOrder[i-1], true
		}
	}
	return "", false
}

// ParseStage validates a string form coming off a queue payload or CLI arg.
func ParseStage(s string) (Stage, error) {
	for _, st := range stageOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	// StageStatusSkippedCacheHit marks a stage satisfied by a previously
	// cached artifact instead of fresh work.
	StageStatusSkippedCacheHit StageStatus = "skipped_cache_hit"
)

// Done reports whether the stage no longer needs work.
func (s StageStatus) Done() bool {
	return s == StageStatusCompleted || s == StageStatusSkippedCacheHit
}

// CompletedSource records where a completed stage's artifact came from.
type CompletedSource string

const (
	SourceWork  CompletedSource = "work"
	SourceCache CompletedSource = "cache"
)

// StageRecord is the durable status record for one (document, stage) pair.
// Retained after completion for audit and crash resume.
type StageRecord struct {
	DocumentID    DocumentID
	Stage         Stage
	Status        StageStatus
	Source        CompletedSource
	ExternalJobID string
	AttemptCount  int
	ErrorDetail   string
	StartedAt     time.Time
	CompletedAt   time.Time
}
