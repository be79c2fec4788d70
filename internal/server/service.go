// Package server is the RPC-facing facade: it validates arguments, calls
// into the pipeline, and maps application errors onto gRPC status codes.
package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/export"
	"github.com/aimta/coa-processor/internal/pipeline"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/repository"
)

// DocumentResult is the consumer-facing view of one document.
type DocumentResult struct {
	Hash         string
	CompoundCode string
	Region       string
	Status       string
	Languages    []string
	ErrorMessage string
	Fields       []entity.ExtractedField
}

type SubmitResponse struct {
	Hash         string
	Deduplicated bool
}

type ProcessorService struct {
	processor *pipeline.Processor
	registry  *registry.Registry
	compounds repository.CompoundRepository
	exporter  *export.Service
	logger    *zap.Logger
}

func NewProcessorService(p *pipeline.Processor, reg *registry.Registry, compounds repository.CompoundRepository, exp *export.Service, logger *zap.Logger) *ProcessorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessorService{processor: p, registry: reg, compounds: compounds, exporter: exp, logger: logger}
}

// SubmitDocument registers raw PDF bytes for later processing. Identical
// bytes dedupe to the already-known document.
func (s *ProcessorService) SubmitDocument(ctx context.Context, raw []byte, compoundCode, region string) (*SubmitResponse, error) {
	if len(raw) == 0 {
		return nil, common.InvalidArgumentError("document bytes are required")
	}
	if compoundCode == "" {
		return nil, common.InvalidArgumentError("compound code is required")
	}
	reg := constants.Region("")
	if region != "" {
		parsed, ok := constants.ParseRegion(region)
		if !ok {
			return nil, common.InvalidArgumentError("unknown region " + region)
		}
		reg = parsed
	}
	compound, err := s.compounds.FindByCode(ctx, compoundCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, common.FailedPreconditionError("unknown compound " + compoundCode)
		}
		return nil, common.InternalError(err.Error())
	}
	if !compound.Active {
		return nil, common.FailedPreconditionError("compound " + compoundCode + " is inactive")
	}

	hash, isNew, err := s.processor.Submit(ctx, raw, compoundCode, reg, entity.SourceAPI)
	if err != nil {
		s.logger.Warn("submit failed", zap.Error(err))
		return nil, common.GRPCStatus(err)
	}
	return &SubmitResponse{Hash: hash, Deduplicated: !isNew}, nil
}

// ProcessDocument runs extraction for a registered document and returns
// its fields. A repeat call is served from the extraction cache.
func (s *ProcessorService) ProcessDocument(ctx context.Context, hash string) (*DocumentResult, error) {
	if hash == "" {
		return nil, common.InvalidArgumentError("document hash is required")
	}
	entry, err := s.processor.ProcessDocument(ctx, hash)
	if err != nil {
		s.logger.Warn("process document failed", zap.String("hash", hash), zap.Error(err))
		return nil, s.mapError(err)
	}
	return s.result(ctx, hash, entry)
}

// ForceReprocess recomputes and overwrites the stored result for the
// document's current template version.
func (s *ProcessorService) ForceReprocess(ctx context.Context, hash string) (*DocumentResult, error) {
	if hash == "" {
		return nil, common.InvalidArgumentError("document hash is required")
	}
	entry, err := s.processor.ForceReprocess(ctx, hash)
	if err != nil {
		s.logger.Warn("force reprocess failed", zap.String("hash", hash), zap.Error(err))
		return nil, s.mapError(err)
	}
	return s.result(ctx, hash, entry)
}

// GetDocument reports the document's lifecycle state without triggering
// any processing.
func (s *ProcessorService) GetDocument(ctx context.Context, hash string) (*DocumentResult, error) {
	if hash == "" {
		return nil, common.InvalidArgumentError("document hash is required")
	}
	return s.result(ctx, hash, nil)
}

// RequeueFailed resets a failed document so it can be processed again.
func (s *ProcessorService) RequeueFailed(ctx context.Context, hash string) error {
	if hash == "" {
		return common.InvalidArgumentError("document hash is required")
	}
	if err := s.registry.Requeue(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return common.NotFoundError("document not found")
		}
		s.logger.Warn("requeue failed", zap.String("hash", hash), zap.Error(err))
		return common.FailedPreconditionError(err.Error())
	}
	return nil
}

// ExportResults builds an XLSX workbook for the given documents.
func (s *ProcessorService) ExportResults(ctx context.Context, hashes []string) ([]byte, error) {
	if len(hashes) == 0 {
		return nil, common.InvalidArgumentError("at least one document hash is required")
	}
	out, err := s.exporter.ExportResultsXLSX(ctx, hashes)
	if err != nil {
		s.logger.Warn("export failed", zap.Int("documents", len(hashes)), zap.Error(err))
		return nil, common.InternalError("export failed")
	}
	return out, nil
}

func (s *ProcessorService) result(ctx context.Context, hash string, entry *entity.CacheEntry) (*DocumentResult, error) {
	doc, err := s.registry.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, common.NotFoundError("document not found")
		}
		return nil, common.InternalError(err.Error())
	}
	out := &DocumentResult{
		Hash:         doc.Hash,
		CompoundCode: doc.CompoundCode,
		Region:       string(doc.Region),
		Status:       string(doc.Status),
		Languages:    doc.Languages,
		ErrorMessage: doc.ErrorMessage,
	}
	if entry != nil {
		out.Fields = entry.Fields
	}
	return out, nil
}

func (s *ProcessorService) mapError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return common.NotFoundError("document not found")
	}
	if errors.Is(err, pipeline.ErrAborted) {
		return common.FailedPreconditionError("processing aborted")
	}
	return common.GRPCStatus(err)
}
