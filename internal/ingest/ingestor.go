package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

// Submitter is the slice of the pipeline the ingestor needs: register
// bytes, then run extraction for the resulting document.
type Submitter interface {
	Submit(ctx context.Context, raw []byte, compoundCode string, region constants.Region, source entity.DocumentSource) (string, bool, error)
	ProcessDocument(ctx context.Context, hash string) (*entity.CacheEntry, error)
}

// IngestionResult is the per-file outcome of an ingest walk.
type IngestionResult struct {
	SourcePath   string
	Hash         string
	Deduplicated bool
	Err          string
}

// DirStats aggregates a directory ingest.
type DirStats struct {
	Scanned      int
	Matched      int
	Succeeded    int
	Failed       int
	Deduplicated int
}

// Ingestor turns filesystem paths into registered documents. The folder
// layout carries routing metadata: <root>/<compound_code>/<region>/file.pdf.
// A missing or unknown region segment leaves the region empty, which the
// template resolver treats as "default template only".
type Ingestor struct {
	sub    Submitter
	logger *slog.Logger
}

func NewIngestor(sub Submitter, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{sub: sub, logger: logger}
}

// routingFromPath derives (compound, region) from the two directories
// closest to the file.
func routingFromPath(path string) (string, constants.Region) {
	dir := filepath.Dir(path)
	parent := filepath.Base(dir)
	if region, ok := constants.ParseRegion(strings.ToUpper(parent)); ok {
		return filepath.Base(filepath.Dir(dir)), region
	}
	return parent, ""
}

// IngestPath registers one file. The document is left queued; processing
// is driven separately so a burst of files does not serialize on provider
// calls here.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return out, err
	}

	compound, region := routingFromPath(abs)
	hash, isNew, err := i.sub.Submit(ctx, raw, compound, region, entity.SourceLocal)
	if err != nil {
		return out, err
	}

	out.Hash = hash
	out.Deduplicated = !isNew
	i.logger.Info("file ingested",
		"path", abs, "hash", hash, "compound", compound, "region", region, "deduplicated", out.Deduplicated)
	return out, nil
}

// IngestDirectory walks root, skips hidden entries, and ingests each
// matching file. Per-file failures land in the results, not the error.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Run consumes watcher events until the channel closes or ctx is
// cancelled, ingesting and then processing each file. Errors are logged
// and the loop keeps going; one bad file never stalls the folder.
func (i *Ingestor) Run(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			res, err := i.IngestPath(ctx, path)
			if err != nil {
				i.logger.Warn("ingest failed", "path", path, "error", err)
				continue
			}
			if _, err := i.sub.ProcessDocument(ctx, res.Hash); err != nil {
				i.logger.Warn("processing failed", "path", path, "hash", res.Hash, "error", err)
			}
		}
	}
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
