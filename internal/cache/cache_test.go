package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/repository"
)

func testKey(version int) entity.CacheKey {
	return entity.CacheKey{
		DocumentHash:    "0c49a1b7d3",
		TemplateID:      uuid.MustParse("7b2d8f9e-0000-0000-0000-000000000001"),
		TemplateVersion: version,
	}
}

func testEntry() *entity.CacheEntry {
	return &entity.CacheEntry{
		Fields: []entity.ExtractedField{{
			FieldName:       "lot_number",
			RawValue:        "AB12-3",
			NormalizedValue: "AB12-3",
			Confidence:      0.9,
			Outcome:         constants.OutcomePassed,
		}},
		CreatedAt:     time.Now().UTC(),
		EngineVersion: constants.EngineVersion,
	}
}

func newTestCache(t *testing.T) (*Cache, *repository.MemoryExtractionRepository) {
	t.Helper()
	repo := repository.NewMemoryExtractionRepository()
	c, err := New(repo, 16, nil)
	require.NoError(t, err)
	return c, repo
}

func TestGetOrCompute_ComputesOnceThenServesFromCache(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(context.Context) (*entity.CacheEntry, error) {
		calls.Add(1)
		return testEntry(), nil
	}

	first, err := c.GetOrCompute(ctx, testKey(1), compute)
	require.NoError(t, err)
	second, err := c.GetOrCompute(ctx, testKey(1), compute)
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, 1, repo.Len())
}

func TestGetOrCompute_ConcurrentCallersShareOneComputation(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	compute := func(context.Context) (*entity.CacheEntry, error) {
		calls.Add(1)
		<-release // hold every caller in flight together
		return testEntry(), nil
	}

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(ctx, testKey(1), compute)
		}(i)
	}

	// Give every goroutine time to hit the reservation before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), calls.Load(), "one in-flight computation per key")
	assert.Equal(t, 1, repo.Len())
}

func TestGetOrCompute_FailurePropagatesAndLeavesKeyAbsent(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	boom := common.NewProviderError("provider down", nil, true)
	_, err := c.GetOrCompute(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, repo.Len(), "failed computations never poison the cache")

	// The key stays computable: a later attempt runs again and succeeds.
	entry, err := c.GetOrCompute(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		return testEntry(), nil
	})
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestGetOrCompute_TemplateVersionBumpMisses(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(context.Context) (*entity.CacheEntry, error) {
		calls.Add(1)
		return testEntry(), nil
	}

	_, err := c.GetOrCompute(ctx, testKey(1), compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, testKey(2), compute)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load(), "a new template version is a new key")
}

func TestForceRefresh_RecomputesAndOverwrites(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetOrCompute(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		return testEntry(), nil
	})
	require.NoError(t, err)

	refreshed := testEntry()
	refreshed.Fields[0].Confidence = 0.42
	entry, err := c.ForceRefresh(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		return refreshed, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0.42, entry.Fields[0].Confidence)
	assert.Equal(t, 1, repo.Len(), "replace, not append")

	// And the overwrite is what Probe now sees.
	stored, err := c.Probe(ctx, testKey(1))
	require.NoError(t, err)
	assert.Equal(t, 0.42, stored.Fields[0].Confidence)
}

func TestGetOrCompute_DetectsRacingWriter(t *testing.T) {
	c, repo := newTestCache(t)
	ctx := context.Background()

	// A second writer sneaking a row in after our reservation's double-check
	// is a synchronization bug, and must surface as a conflict rather than
	// silently clobber the write-once entry.
	_, err := c.GetOrCompute(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		rogue := testEntry()
		rogue.Key = testKey(1)
		require.NoError(t, repo.SaveEntry(ctx, rogue))
		return testEntry(), nil
	})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindCacheConflict))
}

func TestWait_CancelledWaiterReturnsEarly(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	leaderStarted := make(chan struct{})
	go func() {
		_, _ = c.GetOrCompute(context.Background(), testKey(1), func(context.Context) (*entity.CacheEntry, error) {
			close(leaderStarted)
			<-release
			return testEntry(), nil
		})
	}()
	<-leaderStarted

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrCompute(ctx, testKey(1), func(context.Context) (*entity.CacheEntry, error) {
		return testEntry(), nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}
