// coabatch ingests a directory of COA PDFs, runs extraction over all of
// them, and writes the results to an XLSX workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/cache"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/export"
	"github.com/aimta/coa-processor/internal/extract"
	"github.com/aimta/coa-processor/internal/ingest"
	"github.com/aimta/coa-processor/internal/llm"
	"github.com/aimta/coa-processor/internal/llm/openai"
	"github.com/aimta/coa-processor/internal/pipeline"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/repository"
	"github.com/aimta/coa-processor/internal/scoring"
	"github.com/aimta/coa-processor/internal/server"
	"github.com/aimta/coa-processor/internal/template"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir = flag.String("dir", "", "directory to process COA documents from (required)")
		out = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "extractions.xlsx")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	zl, _ := zap.NewProduction()
	defer func() { _ = zl.Sync() }()

	ctx := context.Background()

	_ = godotenv.Load()
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	docs := repository.NewDocumentRepository(pool, logger)
	templates := repository.NewTemplateRepository(pool, logger)
	extractions := repository.NewExtractionRepository(pool, logger)
	compounds := repository.NewCompoundRepository(pool, logger)
	blobs, err := repository.NewFSBlobStore(cfg.Ingest.BlobRoot)
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	reg := registry.New(docs, constants.MaxUploadBytes, logger)
	resolver := template.NewResolver(templates, logger)
	content := extract.NewPDFExtractor(logger)
	provider := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, logger)
	engine := llm.NewEngine(provider, llm.RetryConfig{MaxAttempts: cfg.LLM.MaxAttempts}, logger)
	scorer := scoring.NewScorer(scoring.DefaultCombiner(cfg.Scoring.FlaggedPenalty), logger)
	c, err := cache.New(extractions, cfg.Pipeline.CacheSize, logger)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	processor := pipeline.NewProcessor(logger, pipeline.Config{Workers: cfg.Pipeline.Workers},
		reg, resolver, content, engine, scorer, c, blobs)
	exporter := export.NewService(reg, resolver, c, logger)
	svc := server.NewProcessorService(processor, reg, compounds, exporter, zl)

	// Ingest directory
	logger.Info("starting ingestion", "dir", *dir)
	ingestor := ingest.NewIngestor(processor, logger)
	results, stats, err := ingestor.IngestDirectory(ctx, *dir)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}

	var hashes []string
	for _, r := range results {
		if r.Err == "" {
			hashes = append(hashes, r.Hash)
		}
	}
	logger.Info("ingestion complete",
		"documents", len(hashes),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated)

	// Process everything, then tally per-document outcomes
	processed := 0
	failures := 0
	for hash, err := range processor.ProcessBatch(ctx, hashes) {
		if err != nil {
			logger.Error("failed to process document", "hash", hash, "error", err)
			failures++
		} else {
			processed++
		}
	}

	// Export to XLSX
	logger.Info("exporting to XLSX", "output", *out)
	xlsxBytes, err := svc.ExportResults(ctx, hashes)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"documents_ingested", len(hashes),
		"documents_processed", processed,
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents ingested: %d\n", len(hashes))
	fmt.Printf("- Documents processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}
