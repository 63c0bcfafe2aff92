package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
)

// StageRepo implements storage.StageRepository using PostgreSQL.
type StageRepo struct {
	db *DB
}

// NewStageRepo creates a new PostgreSQL stage record repository.
func NewStageRepo(db *DB) *StageRepo {
	return &StageRepo{db: db}
}

type stageRow struct {
	DocumentID    string       `db:"document_id"`
	Stage         string       `db:"stage"`
	Status        string       `db:"status"`
	Source        string       `db:"source"`
	ExternalJobID string       `db:"external_job_id"`
	AttemptCount  int          `db:"attempt_count"`
	ErrorDetail   string       `db:"error_detail"`
	StartedAt     sql.NullTime `db:"started_at"`
	CompletedAt   sql.NullTime `db:"completed_at"`
}

func (r stageRow) toDomain() (*domain.StageRecord, error) {
	id, err := domain.ParseDocumentID(r.DocumentID)
	if err != nil {
		return nil, err
	}
	rec := &domain.StageRecord{
		DocumentID:    id,
		Stage:         domain.Stage(r.Stage),
		Status:        domain.StageStatus(r.Status),
		Source:        domain.CompletedSource(r.Source),
		ExternalJobID: r.ExternalJobID,
		AttemptCount:  r.AttemptCount,
		ErrorDetail:   r.ErrorDetail,
	}
	if r.StartedAt.Valid {
		rec.StartedAt = r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		rec.CompletedAt = r.CompletedAt.Time
	}
	return rec, nil
}

// Get retrieves the record for one (document, stage) pair.
func (r *StageRepo) Get(ctx context.Context, id domain.DocumentID, stage domain.Stage) (*domain.StageRecord, error) {
	var row stageRow
	query := `SELECT * FROM stage_records WHERE document_id = $1 AND stage = $2`
	err := r.db.GetContext(ctx, &row, query, id.String(), string(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrStageRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage record: %w", err)
	}
	return row.toDomain()
}

// GetAll returns every record for a document in stage order.
func (r *StageRepo) GetAll(ctx context.Context, id domain.DocumentID) ([]*domain.StageRecord, error) {
	var rows []stageRow
	query := `SELECT * FROM stage_records WHERE document_id = $1`
	if err := r.db.SelectContext(ctx, &rows, query, id.String()); err != nil {
		return nil, fmt.Errorf("failed to get stage records: %w", err)
	}

	byStage := make(map[domain.Stage]*domain.StageRecord, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		byStage[rec.Stage] = rec
	}

	var out []*domain.StageRecord
	for _, stage := range domain.Stages() {
		if rec, ok := byStage[stage]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Upsert creates or replaces a record.
func (r *StageRepo) Upsert(ctx context.Context, rec *domain.StageRecord) error {
	query := `
		INSERT INTO stage_records (document_id, stage, status, source, external_job_id, attempt_count, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, stage) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			external_job_id = EXCLUDED.external_job_id,
			attempt_count = EXCLUDED.attempt_count,
			error_detail = EXCLUDED.error_detail
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.DocumentID.String(), string(rec.Stage), string(rec.Status),
		string(rec.Source), rec.ExternalJobID, rec.AttemptCount, rec.ErrorDetail)
	if err != nil {
		return fmt.Errorf("failed to upsert stage record: %w", err)
	}
	return nil
}

// MarkStatus transitions a record's status, creating it if missing.
func (r *StageRepo) MarkStatus(ctx context.Context, id domain.DocumentID, stage domain.Stage, status domain.StageStatus, source domain.CompletedSource, errDetail string) error {
	query := `
		INSERT INTO stage_records (document_id, stage, status, source, error_detail, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5,
			CASE WHEN $3 = 'running' THEN NOW() ELSE NULL END,
			CASE WHEN $3 IN ('completed', 'skipped_cache_hit', 'failed') THEN NOW() ELSE NULL END)
		ON CONFLICT (document_id, stage) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			error_detail = EXCLUDED.error_detail,
			started_at = CASE WHEN EXCLUDED.status = 'running' THEN NOW() ELSE stage_records.started_at END,
			completed_at = CASE WHEN EXCLUDED.status IN ('completed', 'skipped_cache_hit', 'failed') THEN NOW() ELSE stage_records.completed_at END
	`
	_, err := r.db.ExecContext(ctx, query,
		id.String(), string(stage), string(status), string(source), errDetail)
	if err != nil {
		return fmt.Errorf("failed to mark stage status: %w", err)
	}
	return nil
}

// IncrementAttempt bumps the attempt counter and returns the new value.
func (r *StageRepo) IncrementAttempt(ctx context.Context, id domain.DocumentID, stage domain.Stage) (int, error) {
	var count int
	query := `
		INSERT INTO stage_records (document_id, stage, status, attempt_count)
		VALUES ($1, $2, 'pending', 1)
		ON CONFLICT (document_id, stage) DO UPDATE SET
			attempt_count = stage_records.attempt_count + 1
		RETURNING attempt_count
	`
	err := r.db.GetContext(ctx, &count, query, id.String(), string(stage))
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempt: %w", err)
	}
	return count, nil
}

// SetExternalJobID records the external job driving an async stage.
func (r *StageRepo) SetExternalJobID(ctx context.Context, id domain.DocumentID, stage domain.Stage, jobID string) error {
	query := `UPDATE stage_records SET external_job_id = $3 WHERE document_id = $1 AND stage = $2`
	res, err := r.db.ExecContext(ctx, query, id.String(), string(stage), jobID)
	if err != nil {
		return fmt.Errorf("failed to set external job id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrStageRecordNotFound
	}
	return nil
}
