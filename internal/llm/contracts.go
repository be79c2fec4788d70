package llm

import (
	"context"

	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/extract"
)

// ExtractRequest carries everything the engine needs for one document.
// All template fields are extracted in ONE provider call; per-field calls
// would multiply cost and latency.
type ExtractRequest struct {
	Template  *entity.Template
	Text      string
	Regions   []extract.LayoutRegion
	Languages []string
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) ([]entity.FieldCandidate, []byte /*rawJSON*/, error)
}

// Provider is the opaque remote AI capability: schema + prompts in, raw
// structured JSON out. Implementations may be slow and may fail; the
// engine handles retry and strict parsing.
type Provider interface {
	Request(ctx context.Context, schema map[string]any, systemPrompt, userPrompt string) ([]byte, error)
}
