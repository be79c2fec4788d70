package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/aimta/coa-processor/constants"
)

// FieldCandidate is a raw per-field result from the extraction provider,
// before normalization and scoring. A required field the provider omitted
// is represented as a candidate with Missing=true and confidence 0, never
// dropped.
type FieldCandidate struct {
	FieldName       string
	RawValue        string
	ModelConfidence float64
	SourceSnippet   string
	Missing         bool
}

// ExtractedField is one finalized (document, template, field) result.
type ExtractedField struct {
	FieldName       string
	RawValue        string
	NormalizedValue string
	Confidence      float64 // always within [0,1]
	SourceSnippet   string
	Outcome         constants.ValidationOutcome
}

// CacheKey identifies one extraction run. Bumping a template version
// changes the key, so old entries become unreachable rather than stale.
type CacheKey struct {
	DocumentHash    string
	TemplateID      uuid.UUID
	TemplateVersion int
}

// CacheEntry is the write-once persisted result for a CacheKey.
type CacheEntry struct {
	Key           CacheKey
	Fields        []ExtractedField
	CreatedAt     time.Time
	EngineVersion string
}
