// coaprocessord is the long-running extraction daemon: it watches folders
// for COA PDFs, runs the extraction pipeline against an OpenAI-compatible
// provider, and serves health over gRPC.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/cache"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/extract"
	"github.com/aimta/coa-processor/internal/ingest"
	"github.com/aimta/coa-processor/internal/llm"
	"github.com/aimta/coa-processor/internal/llm/openai"
	"github.com/aimta/coa-processor/internal/pipeline"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/repository"
	"github.com/aimta/coa-processor/internal/scoring"
	"github.com/aimta/coa-processor/internal/template"
)

func main() {
	_ = godotenv.Load()

	zl, _ := zap.NewProduction()
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, slogger)
	if err != nil {
		log.Fatalf("creating DB pool: %v", err)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout); err != nil {
		log.Fatalf("DB health failed: %v", err)
	}
	log.Infow("DB health OK")

	// Repositories and blob storage
	docs := repository.NewDocumentRepository(pool, slogger)
	templates := repository.NewTemplateRepository(pool, slogger)
	extractions := repository.NewExtractionRepository(pool, slogger)
	blobs, err := repository.NewFSBlobStore(cfg.Ingest.BlobRoot)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// Pipeline components
	reg := registry.New(docs, constants.MaxUploadBytes, slogger)
	resolver := template.NewResolver(templates, slogger)
	content := extract.NewPDFExtractor(slogger)
	provider := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RatePerSec:  cfg.LLM.RatePerSec,
	}, slogger)
	engine := llm.NewEngine(provider, llm.RetryConfig{MaxAttempts: cfg.LLM.MaxAttempts}, slogger)
	scorer := scoring.NewScorer(scoring.DefaultCombiner(cfg.Scoring.FlaggedPenalty), slogger)
	c, err := cache.New(extractions, cfg.Pipeline.CacheSize, slogger)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	processor := pipeline.NewProcessor(slogger, pipeline.Config{Workers: cfg.Pipeline.Workers},
		reg, resolver, content, engine, scorer, c, blobs)

	// Folder watcher feeds the pipeline
	if len(cfg.Ingest.WatchRoots) > 0 {
		events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       cfg.Ingest.WatchRoots,
			InitialScan: cfg.Ingest.InitialScan,
			Debounce:    cfg.Ingest.Debounce,
		}, slogger)
		if err != nil {
			log.Fatalf("watcher: %v", err)
		}
		ingestor := ingest.NewIngestor(processor, slogger)
		go ingestor.Run(ctx, events)
		go func() {
			for err := range watchErrs {
				log.Warnw("watcher error", "error", err)
			}
		}()
		log.Infow("watching for documents", "roots", cfg.Ingest.WatchRoots)
	}

	// gRPC server: health + reflection
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Infof("gRPC serving on %s", cfg.Server.GRPCAddr)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	grpcServer.GracefulStop()
	fmt.Println("stopped.")
}
