package server

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/cache"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/export"
	"github.com/aimta/coa-processor/internal/extract"
	"github.com/aimta/coa-processor/internal/llm"
	"github.com/aimta/coa-processor/internal/pipeline"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/repository"
	"github.com/aimta/coa-processor/internal/scoring"
	"github.com/aimta/coa-processor/internal/template"
)

type stubContent struct{}

func (stubContent) Extract(context.Context, []byte) (extract.ContentResult, error) {
	return extract.ContentResult{Text: "Lot: AB12-3", Languages: []string{"en"}, Pages: 1}, nil
}

type stubEngine struct{}

func (stubEngine) ExtractFields(_ context.Context, req llm.ExtractRequest) ([]entity.FieldCandidate, []byte, error) {
	var out []entity.FieldCandidate
	for _, spec := range req.Template.Fields {
		out = append(out, entity.FieldCandidate{FieldName: spec.Name, RawValue: "AB12-3", ModelConfidence: 0.9})
	}
	return out, []byte(`{}`), nil
}

func newTestService(t *testing.T) *ProcessorService {
	t.Helper()

	tpl := &entity.Template{
		ID:           uuid.New(),
		CompoundCode: "ASP-100",
		Region:       constants.RegionEU,
		Version:      1,
		Fields:       []entity.FieldSpec{{Name: "lot_number", Type: entity.FieldTypeText, Required: true}},
	}
	reg := registry.New(repository.NewMemoryDocumentRepository(), 0, nil)
	resolver := template.NewResolver(repository.NewMemoryTemplateRepository(tpl), nil)
	c, err := cache.New(repository.NewMemoryExtractionRepository(), 16, nil)
	require.NoError(t, err)

	compounds := repository.NewMemoryCompoundRepository(
		&entity.Compound{ID: uuid.New(), Code: "ASP-100", Name: "Aspirin analog", Active: true},
		&entity.Compound{ID: uuid.New(), Code: "NOTPL-7", Name: "No templates yet", Active: true},
		&entity.Compound{ID: uuid.New(), Code: "RETIRED-1", Name: "Discontinued", Active: false},
	)

	p := pipeline.NewProcessor(nil, pipeline.Config{Workers: 2},
		reg, resolver, stubContent{}, stubEngine{},
		scoring.NewScorer(nil, nil), c, repository.NewMemoryBlobStore())

	return NewProcessorService(p, reg, compounds, export.NewService(reg, resolver, c, nil), nil)
}

func grpcCode(t *testing.T, err error) codes.Code {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "expected a gRPC status, got %v", err)
	return st.Code()
}

func TestSubmitAndProcess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "ASP-100", "EU")
	require.NoError(t, err)
	assert.False(t, sub.Deduplicated)

	res, err := svc.ProcessDocument(ctx, sub.Hash)
	require.NoError(t, err)
	assert.Equal(t, "EXTRACTED", res.Status)
	require.Len(t, res.Fields, 1)
	assert.Equal(t, "lot_number", res.Fields[0].FieldName)

	again, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "ASP-100", "EU")
	require.NoError(t, err)
	assert.True(t, again.Deduplicated)
}

func TestSubmitDocument_ArgumentValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitDocument(ctx, nil, "ASP-100", "EU")
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))

	_, err = svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "ASP-100", "MARS")
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))

	_, err = svc.SubmitDocument(ctx, []byte("not a pdf"), "ASP-100", "EU")
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))

	_, err = svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "", "EU")
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))
}

func TestSubmitDocument_CompoundRegistry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "NEVER-HEARD-OF", "EU")
	assert.Equal(t, codes.FailedPrecondition, grpcCode(t, err))

	_, err = svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "RETIRED-1", "EU")
	assert.Equal(t, codes.FailedPrecondition, grpcCode(t, err))
}

func TestProcessDocument_UnknownHash(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ProcessDocument(context.Background(), "0000000000000000")
	assert.Equal(t, codes.NotFound, grpcCode(t, err))

	_, err = svc.ProcessDocument(context.Background(), "")
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))
}

func TestProcessDocument_MissingTemplateIsFailedPrecondition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\nmystery"), "NOTPL-7", "EU")
	require.NoError(t, err)

	_, err = svc.ProcessDocument(ctx, sub.Hash)
	assert.Equal(t, codes.FailedPrecondition, grpcCode(t, err))
}

func TestRequeueFailed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// A document that failed template resolution can be requeued once the
	// configuration is fixed.
	sub, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\nmystery"), "NOTPL-7", "EU")
	require.NoError(t, err)
	_, err = svc.ProcessDocument(ctx, sub.Hash)
	require.Error(t, err)

	require.NoError(t, svc.RequeueFailed(ctx, sub.Hash))

	res, err := svc.GetDocument(ctx, sub.Hash)
	require.NoError(t, err)
	assert.Equal(t, "QUEUED", res.Status)

	// Requeue on a healthy queued document is an illegal transition.
	err = svc.RequeueFailed(ctx, sub.Hash)
	assert.Equal(t, codes.FailedPrecondition, grpcCode(t, err))

	err = svc.RequeueFailed(ctx, "0000000000000000")
	assert.Equal(t, codes.NotFound, grpcCode(t, err))
}

func TestExportResults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.SubmitDocument(ctx, []byte("%PDF-1.7\ndoc"), "ASP-100", "EU")
	require.NoError(t, err)
	_, err = svc.ProcessDocument(ctx, sub.Hash)
	require.NoError(t, err)

	out, err := svc.ExportResults(ctx, []string{sub.Hash})
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = svc.ExportResults(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, grpcCode(t, err))
}
