// Package pipeline coordinates the extraction stages for one document:
// registry -> resolver -> content extractor -> field engine -> scorer ->
// cache write-through.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/cache"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/extract"
	"github.com/aimta/coa-processor/internal/llm"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/repository"
	"github.com/aimta/coa-processor/internal/scoring"
	"github.com/aimta/coa-processor/internal/template"
)

// ErrAborted reports a processing run whose result was discarded because
// the document was aborted mid-flight.
var ErrAborted = common.NewAppError("PROCESSING_ABORTED", "document processing aborted", nil)

// Config holds pipeline behavior knobs.
type Config struct {
	Workers int // concurrent documents in ProcessBatch
}

type Processor struct {
	Logger   *slog.Logger
	Cfg      Config
	Registry *registry.Registry
	Resolver *template.Resolver
	Content  extract.ContentExtractor
	Engine   llm.FieldExtractor
	Scorer   *scoring.Scorer
	Cache    *cache.Cache
	Blobs    repository.BlobStore

	mu      sync.Mutex
	aborted map[string]struct{}
}

func NewProcessor(
	logger *slog.Logger,
	cfg Config,
	reg *registry.Registry,
	resolver *template.Resolver,
	content extract.ContentExtractor,
	engine llm.FieldExtractor,
	scorer *scoring.Scorer,
	c *cache.Cache,
	blobs repository.BlobStore,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Processor{
		Logger:   logger,
		Cfg:      cfg,
		Registry: reg,
		Resolver: resolver,
		Content:  content,
		Engine:   engine,
		Scorer:   scorer,
		Cache:    c,
		Blobs:    blobs,
		aborted:  make(map[string]struct{}),
	}
}

// Submit registers raw bytes, stores them, and queues a new document.
// Resubmitting identical bytes dedupes to the existing document.
func (p *Processor) Submit(ctx context.Context, raw []byte, compoundCode string, region constants.Region, source entity.DocumentSource) (string, bool, error) {
	hash, isNew, err := p.Registry.Register(ctx, raw, compoundCode, region, source)
	if err != nil {
		return "", false, err
	}
	if !isNew {
		return hash, false, nil
	}
	if err := p.Blobs.Put(ctx, hash, raw); err != nil {
		return hash, true, err
	}
	if err := p.Registry.Enqueue(ctx, hash); err != nil {
		return hash, true, err
	}
	return hash, true, nil
}

// Abort marks a document so that an in-flight run's result is discarded:
// the provider call completes, but nothing is written to cache. The run
// that observes the mark consumes it and requeues the document, so a later
// ProcessDocument starts clean.
func (p *Processor) Abort(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aborted[hash] = struct{}{}
}

// takeAbort consumes the abort mark for hash, if one is set. A mark is
// good for exactly one discarded run; it never outlives the run that
// observed it.
func (p *Processor) takeAbort(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.aborted[hash]; !ok {
		return false
	}
	delete(p.aborted, hash)
	return true
}

// abortRun discards the run's result and steps a tracked document back to
// QUEUED so it stays processable.
func (p *Processor) abortRun(ctx context.Context, hash string, tracking bool) error {
	if tracking {
		if err := p.Registry.Requeue(ctx, hash); err != nil {
			p.Logger.Error("failed to requeue aborted document", "hash", hash, "error", err)
		}
	}
	p.Logger.Info("processing aborted, result discarded", "hash", hash)
	return ErrAborted
}

// ProcessDocument runs the pipeline for a registered document. A cache hit
// short-circuits everything after template resolution; concurrent calls
// for one document share a single run.
func (p *Processor) ProcessDocument(ctx context.Context, hash string) (*entity.CacheEntry, error) {
	return p.process(ctx, hash, false)
}

// ForceReprocess bypasses the cache read and recomputes the entry for the
// document's current template version.
func (p *Processor) ForceReprocess(ctx context.Context, hash string) (*entity.CacheEntry, error) {
	return p.process(ctx, hash, true)
}

func (p *Processor) process(ctx context.Context, hash string, force bool) (*entity.CacheEntry, error) {
	doc, err := p.Registry.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	lang := constants.LangNeutral
	if len(doc.Languages) > 0 {
		lang = doc.Languages[0]
	}
	tpl, err := p.Resolver.Resolve(ctx, doc.CompoundCode, doc.Region, lang)
	if err != nil {
		// Missing configuration is terminal for the document and surfaced
		// distinctly so the caller fixes templates instead of retrying.
		if common.IsKind(err, common.KindTemplateNotFound) {
			p.failNonExtracting(ctx, hash, err)
		}
		return nil, err
	}

	key := entity.CacheKey{DocumentHash: hash, TemplateID: tpl.ID, TemplateVersion: tpl.Version}
	compute := func(ctx context.Context) (*entity.CacheEntry, error) {
		return p.runStages(ctx, hash, tpl)
	}
	if force {
		return p.Cache.ForceRefresh(ctx, key, compute)
	}
	return p.Cache.GetOrCompute(ctx, key, compute)
}

// runStages is the leader path: exactly one per (document, template
// version) at a time, enforced by the cache reservation.
//
// Lifecycle transitions are tracked only for first-time runs; a forced
// recompute of an already-extracted document leaves its state alone.
func (p *Processor) runStages(ctx context.Context, hash string, tpl *entity.Template) (*entity.CacheEntry, error) {
	doc, err := p.Registry.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	tracking := !constants.IsTerminal(doc.Status)
	if tracking {
		if err := p.Registry.BeginExtracting(ctx, hash); err != nil {
			return nil, err
		}
	}

	raw, err := p.Blobs.Get(ctx, hash)
	if err != nil {
		return nil, p.fail(ctx, hash, tracking, common.NewContentExtractionError("document bytes unavailable", err))
	}

	content, err := p.Content.Extract(ctx, raw)
	if err != nil {
		return nil, p.fail(ctx, hash, tracking, err)
	}
	if err := p.Registry.RecordLanguages(ctx, hash, content.Languages); err != nil {
		p.Logger.Warn("failed to record languages", "hash", hash, "error", err)
	}

	candidates, _, err := p.Engine.ExtractFields(ctx, llm.ExtractRequest{
		Template:  tpl,
		Text:      content.Text,
		Regions:   content.Regions,
		Languages: content.Languages,
	})
	if err != nil {
		if p.takeAbort(hash) {
			return nil, p.abortRun(ctx, hash, tracking)
		}
		return nil, p.fail(ctx, hash, tracking, err)
	}

	fields := make([]entity.ExtractedField, 0, len(candidates))
	for _, cand := range candidates {
		spec, ok := tpl.Field(cand.FieldName)
		if !ok {
			continue
		}
		fields = append(fields, p.Scorer.Score(spec, cand))
	}

	if p.takeAbort(hash) {
		// The provider call was allowed to finish; its result is dropped
		// and the document goes back to the queue.
		return nil, p.abortRun(ctx, hash, tracking)
	}

	if tracking {
		if err := p.Registry.FinishExtracted(ctx, hash); err != nil {
			return nil, err
		}
	}
	p.Logger.Info("document extracted",
		"hash", hash, "template_id", tpl.ID, "template_version", tpl.Version, "fields", len(fields))
	return &entity.CacheEntry{
		Fields:        fields,
		CreatedAt:     time.Now().UTC(),
		EngineVersion: constants.EngineVersion,
	}, nil
}

// fail records a terminal failure and passes the cause through.
func (p *Processor) fail(ctx context.Context, hash string, tracking bool, cause error) error {
	if p.takeAbort(hash) {
		return p.abortRun(ctx, hash, tracking)
	}
	if tracking {
		if err := p.Registry.FinishFailed(ctx, hash, cause); err != nil {
			p.Logger.Error("failed to mark document failed", "hash", hash, "error", err)
		}
	}
	return cause
}

// failNonExtracting marks a queued document failed. Resolution failures
// happen before the extracting stage begins, so the document is walked
// through EXTRACTING to keep the lifecycle monotonic.
func (p *Processor) failNonExtracting(ctx context.Context, hash string, cause error) {
	if err := p.Registry.BeginExtracting(ctx, hash); err != nil {
		return
	}
	_ = p.Registry.FinishFailed(ctx, hash, cause)
}

// ProcessBatch runs the pipeline for many documents concurrently, capped
// at Cfg.Workers. Per-document failures are reported on the returned map,
// not as a batch error.
func (p *Processor) ProcessBatch(ctx context.Context, hashes []string) map[string]error {
	results := make(map[string]error, len(hashes))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.Workers)
	for _, hash := range hashes {
		hash := hash
		g.Go(func() error {
			_, err := p.ProcessDocument(ctx, hash)
			mu.Lock()
			results[hash] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
