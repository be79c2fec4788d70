package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimta/coa-processor/internal/common"
)

// scriptedProvider plays back one response per call and counts calls.
type scriptedProvider struct {
	calls     atomic.Int64
	responses []func() ([]byte, error)
}

func (p *scriptedProvider) Request(_ context.Context, _ map[string]any, _, _ string) ([]byte, error) {
	n := int(p.calls.Add(1)) - 1
	if n >= len(p.responses) {
		n = len(p.responses) - 1
	}
	return p.responses[n]()
}

func goodResponse() ([]byte, error) {
	return []byte(`{
		"lot_number": {"value": "AB12-3", "confidence": 0.92, "snippet": "Lot: AB12-3"},
		"assay": {"value": "99.7%", "confidence": 0.88}
	}`), nil
}

func transientFailure() ([]byte, error) {
	return nil, common.NewProviderError("rate limited", nil, true)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond}
}

func extractReq() ExtractRequest {
	return ExtractRequest{
		Template:  testTemplate(),
		Text:      "Certificate of Analysis\nLot: AB12-3\nAssay: 99.7%",
		Languages: []string{"en"},
	}
}

func TestExtractFields_Success(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){goodResponse}}
	e := NewEngine(p, fastRetry(), nil)

	candidates, raw, err := e.ExtractFields(context.Background(), extractReq())
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, int64(1), p.calls.Load())

	// Template order: lot_number, assay present; required assay answered;
	// optional storage_condition omitted entirely.
	require.Len(t, candidates, 2)
	assert.Equal(t, "lot_number", candidates[0].FieldName)
	assert.Equal(t, "AB12-3", candidates[0].RawValue)
	assert.Equal(t, 0.92, candidates[0].ModelConfidence)
	assert.Equal(t, "Lot: AB12-3", candidates[0].SourceSnippet)
}

func TestExtractFields_RetriesTransientFailures(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){
		transientFailure,
		transientFailure,
		goodResponse,
	}}
	e := NewEngine(p, fastRetry(), nil)

	candidates, _, err := e.ExtractFields(context.Background(), extractReq())
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Equal(t, int64(3), p.calls.Load(), "fail, fail, succeed: exactly three provider calls")
}

func TestExtractFields_ExhaustsRetryBudget(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){transientFailure}}
	e := NewEngine(p, fastRetry(), nil)

	_, _, err := e.ExtractFields(context.Background(), extractReq())
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindProvider))
	assert.Equal(t, int64(3), p.calls.Load())
}

func TestExtractFields_NonTransientFailsImmediately(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){
		func() ([]byte, error) {
			return nil, common.NewProviderError("invalid api key", nil, false)
		},
	}}
	e := NewEngine(p, fastRetry(), nil)

	_, _, err := e.ExtractFields(context.Background(), extractReq())
	require.Error(t, err)
	assert.Equal(t, int64(1), p.calls.Load(), "auth failures must not be retried")
}

func TestExtractFields_UnparseableResponse(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){
		func() ([]byte, error) { return []byte("Sure! Here are the fields you asked for:"), nil },
	}}
	e := NewEngine(p, fastRetry(), nil)

	_, _, err := e.ExtractFields(context.Background(), extractReq())
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindProvider))
	assert.False(t, common.IsTransient(err), "a malformed body is not worth retrying")
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestExtractFields_UnknownFieldsSurviveSanitization(t *testing.T) {
	p := &scriptedProvider{responses: []func() ([]byte, error){
		func() ([]byte, error) {
			return []byte(`{
				"lot_number": {"value": "AB12-3"},
				"assay": {"value": "99.7%"},
				"hallucinated_field": {"value": "42"}
			}`), nil
		},
	}}
	e := NewEngine(p, fastRetry(), nil)

	candidates, _, err := e.ExtractFields(context.Background(), extractReq())
	require.NoError(t, err)
	for _, c := range candidates {
		assert.NotEqual(t, "hallucinated_field", c.FieldName)
	}
}
