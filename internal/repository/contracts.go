package repository

import (
	"context"
	"errors"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

// ErrNotFound is returned by Find* methods when no row matches.
var ErrNotFound = errors.New("resource not found")

// DocumentRepository persists Document rows. The registry is the only
// writer of lifecycle state.
type DocumentRepository interface {
	Save(ctx context.Context, doc *entity.Document) error
	FindByHash(ctx context.Context, hash string) (*entity.Document, error)
	UpdateStatus(ctx context.Context, hash string, status constants.DocStatus, errorMessage string) error
}

// CompoundRepository tracks the chemical entities documents are filed
// under. Codes are immutable identities; metadata is mutable.
type CompoundRepository interface {
	FindByCode(ctx context.Context, code string) (*entity.Compound, error)
	Upsert(ctx context.Context, compound *entity.Compound) error
	ListActive(ctx context.Context) ([]*entity.Compound, error)
}

// TemplateRepository reads templates published by the external
// configuration collaborator. The pipeline never writes templates.
type TemplateRepository interface {
	ListByCompound(ctx context.Context, compoundCode string) ([]*entity.Template, error)
}

// ExtractionRepository persists finalized cache entries. Entries are
// write-once per key; SaveEntry must fail on a duplicate key rather than
// overwrite. ReplaceEntry is the explicit force-refresh escape hatch.
type ExtractionRepository interface {
	SaveEntry(ctx context.Context, entry *entity.CacheEntry) error
	ReplaceEntry(ctx context.Context, entry *entity.CacheEntry) error
	FindByKey(ctx context.Context, key entity.CacheKey) (*entity.CacheEntry, error)
}
