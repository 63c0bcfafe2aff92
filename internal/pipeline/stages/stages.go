package stages

import (
	"context"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
)

// ArtifactLoader fetches a completed prior stage's artifact, cache first then
// datastore. The orchestrator supplies it so stages never touch storage
// directly.
type ArtifactLoader func(ctx context.Context, stage domain.Stage) (domain.StagePayload, error)

// WorkUnit is a synchronous stage: given the document and access to prior
// artifacts it produces this stage's payload. Work units are idempotent;
// re-running one against the same inputs yields an equivalent artifact.
type WorkUnit interface {
	Stage() domain.Stage
	Run(ctx context.Context, doc *domain.Document, prior ArtifactLoader) (domain.StagePayload, error)
}
