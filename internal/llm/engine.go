package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
)

// Engine implements FieldExtractor on top of an opaque Provider. One
// batched provider call covers every FieldSpec in the template; the
// response is strictly validated and parsed into FieldCandidates.
type Engine struct {
	provider Provider
	retry    RetryConfig
	logger   *slog.Logger
}

func NewEngine(provider Provider, retry RetryConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, retry: retry, logger: logger}
}

func (e *Engine) ExtractFields(ctx context.Context, req ExtractRequest) ([]entity.FieldCandidate, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	schema := BuildExtractionJSONSchema(req.Template)
	sys := BuildSystemPrompt(req.Template, req.Languages)
	user := BuildUserPrompt(req.Text, req.Regions)

	e.logger.Info("llm.extract.start",
		"req_id", rid,
		"template_id", req.Template.ID,
		"template_version", req.Template.Version,
		"fields", len(req.Template.Fields),
		"text_len", len(req.Text),
		"languages", req.Languages,
	)

	raw, err := withRetry(ctx, e.retry, e.logger, func() ([]byte, error) {
		return e.provider.Request(ctx, schema, sys, user)
	})
	if err != nil {
		e.logger.Error("llm.extract.provider_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, err
	}

	// Sanitize shape first (drop unknown fields, unwrap bare values), then
	// validate strictly. Anything still failing is a non-transient provider
	// error, not a crash.
	cleaned, dropped, err := SanitizeResponse(req.Template, raw)
	if err != nil {
		e.logger.Error("llm.extract.sanitize_failed", "req_id", rid, "error", err)
		return nil, raw, common.NewProviderError("unparseable provider response", err, false)
	}
	if len(dropped) > 0 {
		e.logger.Warn("llm.extract.sanitize_applied", "req_id", rid, "dropped", dropped)
	}
	if err := ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		e.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
		)
		return nil, raw, common.NewProviderError("provider response failed schema validation", err, false)
	}

	candidates, err := ParseCandidates(req.Template, cleaned)
	if err != nil {
		return nil, raw, common.NewProviderError("provider response shape mismatch", err, false)
	}

	e.logger.Info("llm.extract.ok",
		"req_id", rid,
		"candidates", len(candidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return candidates, cleaned, nil
}
