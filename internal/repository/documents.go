package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

type documentRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{pool: pool, logger: logger}
}

func (r *documentRepository) Save(ctx context.Context, doc *entity.Document) error {
	const q = `
		INSERT INTO coa_documents
			(content_hash, byte_size, languages, status, source, compound_code, region, received_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (content_hash) DO UPDATE SET
			languages = EXCLUDED.languages,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message`
	_, err := r.pool.Exec(ctx, q,
		doc.Hash, doc.ByteSize, doc.Languages, string(doc.Status), string(doc.Source),
		doc.CompoundCode, string(doc.Region), doc.ReceivedAt, doc.ErrorMessage)
	if err != nil {
		r.logger.Error("failed to save document", "hash", doc.Hash, "error", err)
	}
	return err
}

func (r *documentRepository) FindByHash(ctx context.Context, hash string) (*entity.Document, error) {
	const q = `
		SELECT content_hash, byte_size, languages, status, source, compound_code, region, received_at, error_message
		FROM coa_documents WHERE content_hash = $1`
	var doc entity.Document
	var status, source, region string
	err := r.pool.QueryRow(ctx, q, hash).Scan(
		&doc.Hash, &doc.ByteSize, &doc.Languages, &status, &source,
		&doc.CompoundCode, &region, &doc.ReceivedAt, &doc.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Status = constants.DocStatus(status)
	doc.Source = entity.DocumentSource(source)
	doc.Region = constants.Region(region)
	return &doc, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, hash string, status constants.DocStatus, errorMessage string) error {
	const q = `UPDATE coa_documents SET status = $2, error_message = $3 WHERE content_hash = $1`
	tag, err := r.pool.Exec(ctx, q, hash, string(status), errorMessage)
	if err != nil {
		r.logger.Error("failed to update document status", "hash", hash, "status", status, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
