package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joeott/legal-doc-processor-sub003/internal/core/domain"
	"github.com/joeott/legal-doc-processor-sub003/internal/infra/storage"
)

// DocumentRepo implements storage.DocumentRepository using PostgreSQL.
type DocumentRepo struct {
	db *DB
}

// NewDocumentRepo creates a new PostgreSQL document repository.
func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

type documentRow struct {
	ID           string    `db:"id"`
	SourceBucket string    `db:"source_bucket"`
	SourceKey    string    `db:"source_key"`
	ContentType  string    `db:"content_type"`
	CurrentStage string    `db:"current_stage"`
	Status       string    `db:"status"`
	ErrorKind    string    `db:"error_kind"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r documentRow) toDomain() (*domain.Document, error) {
	id, err := domain.ParseDocumentID(r.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Document{
		ID:           id,
		Source:       domain.SourceRef{Bucket: r.SourceBucket, Key: r.SourceKey},
		ContentType:  r.ContentType,
		CurrentStage: domain.Stage(r.CurrentStage),
		Status:       domain.DocumentStatus(r.Status),
		ErrorKind:    domain.ErrorKind(r.ErrorKind),
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

// Create inserts a new document at intake.
func (r *DocumentRepo) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, source_bucket, source_key, content_type, current_stage, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID.String(), doc.Source.Bucket, doc.Source.Key,
		doc.ContentType, string(doc.CurrentStage), string(doc.Status))
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Load retrieves a document by id.
func (r *DocumentRepo) Load(ctx context.Context, id domain.DocumentID) (*domain.Document, error) {
	var row documentRow
	query := `SELECT * FROM documents WHERE id = $1`
	err := r.db.GetContext(ctx, &row, query, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return row.toDomain()
}

// UpdateStatus sets the document status plus error detail.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id domain.DocumentID, status domain.DocumentStatus, kind domain.ErrorKind, msg string) error {
	query := `
		UPDATE documents
		SET status = $2, error_kind = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id.String(), string(status), string(kind), msg)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrDocumentNotFound
	}
	return nil
}

// UpdateCurrentStage advances the document's stage pointer.
func (r *DocumentRepo) UpdateCurrentStage(ctx context.Context, id domain.DocumentID, stage domain.Stage) error {
	query := `UPDATE documents SET current_stage = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id.String(), string(stage))
	if err != nil {
		return fmt.Errorf("failed to update current stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrDocumentNotFound
	}
	return nil
}

// ListByStatus returns documents in a given status.
func (r *DocumentRepo) ListByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []documentRow
	query := `SELECT * FROM documents WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, string(status), limit); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	out := make([]*domain.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
