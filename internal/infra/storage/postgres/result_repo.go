package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
)

// ResultRepo implements storage.StageResultRepository using PostgreSQL.
// Artifacts land here before any cache write; a row in this table is what
// makes a stage count as done.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL stage result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// SaveResult stores the serialized artifact. Last write wins: only the lock
// holder writes for a document at any moment.
func (r *ResultRepo) SaveResult(ctx context.Context, id domain.DocumentID, stage domain.Stage, payload []byte) error {
	query := `
		INSERT INTO stage_results (document_id, stage, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, stage) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, id.String(), string(stage), payload)
	if err != nil {
		return fmt.Errorf("failed to save stage result: %w", err)
	}
	return nil
}

// GetResult loads the serialized artifact for a (document, stage).
func (r *ResultRepo) GetResult(ctx context.Context, id domain.DocumentID, stage domain.Stage) ([]byte, error) {
	var payload []byte
	query := `SELECT payload FROM stage_results WHERE document_id = $1 AND stage = $2`
	err := r.db.GetContext(ctx, &payload, query, id.String(), string(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage result: %w", err)
	}
	return payload, nil
}
