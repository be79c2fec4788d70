package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

// ErrDuplicateEntry is returned when a cache entry already exists for a
// key. The cache treats this as a synchronization invariant violation.
var ErrDuplicateEntry = errors.New("cache entry already exists for key")

type extractionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewExtractionRepository(pool *pgxpool.Pool, logger *slog.Logger) ExtractionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &extractionRepository{pool: pool, logger: logger}
}

// extractedFieldRow is the JSONB shape stored in extraction_cache.fields.
type extractedFieldRow struct {
	FieldName       string  `json:"field_name"`
	RawValue        string  `json:"raw_value"`
	NormalizedValue string  `json:"normalized_value"`
	Confidence      float64 `json:"confidence"`
	SourceSnippet   string  `json:"source_snippet,omitempty"`
	Outcome         string  `json:"outcome"`
}

func marshalFields(entry *entity.CacheEntry) ([]byte, error) {
	rows := make([]extractedFieldRow, 0, len(entry.Fields))
	for _, f := range entry.Fields {
		rows = append(rows, extractedFieldRow{
			FieldName:       f.FieldName,
			RawValue:        f.RawValue,
			NormalizedValue: f.NormalizedValue,
			Confidence:      f.Confidence,
			SourceSnippet:   f.SourceSnippet,
			Outcome:         string(f.Outcome),
		})
	}
	return json.Marshal(rows)
}

func (r *extractionRepository) SaveEntry(ctx context.Context, entry *entity.CacheEntry) error {
	fieldsRaw, err := marshalFields(entry)
	if err != nil {
		return err
	}

	// Write-once per key: never overwrite an existing entry.
	const q = `
		INSERT INTO extraction_cache
			(document_hash, template_id, template_version, fields, created_at, engine_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_hash, template_id, template_version) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q,
		entry.Key.DocumentHash, entry.Key.TemplateID, entry.Key.TemplateVersion,
		fieldsRaw, entry.CreatedAt, entry.EngineVersion)
	if err != nil {
		r.logger.Error("failed to save cache entry", "hash", entry.Key.DocumentHash, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateEntry
	}
	return nil
}

// ReplaceEntry overwrites any prior entry for the key. Only the explicit
// force-refresh path may call this.
func (r *extractionRepository) ReplaceEntry(ctx context.Context, entry *entity.CacheEntry) error {
	fieldsRaw, err := marshalFields(entry)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO extraction_cache
			(document_hash, template_id, template_version, fields, created_at, engine_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_hash, template_id, template_version) DO UPDATE SET
			fields = EXCLUDED.fields,
			created_at = EXCLUDED.created_at,
			engine_version = EXCLUDED.engine_version`
	_, err = r.pool.Exec(ctx, q,
		entry.Key.DocumentHash, entry.Key.TemplateID, entry.Key.TemplateVersion,
		fieldsRaw, entry.CreatedAt, entry.EngineVersion)
	if err != nil {
		r.logger.Error("failed to replace cache entry", "hash", entry.Key.DocumentHash, "error", err)
	}
	return err
}

func (r *extractionRepository) FindByKey(ctx context.Context, key entity.CacheKey) (*entity.CacheEntry, error) {
	const q = `
		SELECT fields, created_at, engine_version
		FROM extraction_cache
		WHERE document_hash = $1 AND template_id = $2 AND template_version = $3`
	entry := &entity.CacheEntry{Key: key}
	var fieldsRaw []byte
	err := r.pool.QueryRow(ctx, q, key.DocumentHash, key.TemplateID, key.TemplateVersion).
		Scan(&fieldsRaw, &entry.CreatedAt, &entry.EngineVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rows []extractedFieldRow
	if err := json.Unmarshal(fieldsRaw, &rows); err != nil {
		return nil, err
	}
	for _, f := range rows {
		entry.Fields = append(entry.Fields, entity.ExtractedField{
			FieldName:       f.FieldName,
			RawValue:        f.RawValue,
			NormalizedValue: f.NormalizedValue,
			Confidence:      f.Confidence,
			SourceSnippet:   f.SourceSnippet,
			Outcome:         constants.ValidationOutcome(f.Outcome),
		})
	}
	return entry, nil
}
