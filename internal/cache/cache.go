// Package cache is the single source of truth for "has this already been
// extracted". It layers an in-process LRU over the extraction repository
// and guarantees at most one in-flight computation per key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/repository"
)

// ComputeFn produces the entry for a key on a cache miss. It runs at most
// once per key at a time, no matter how many callers arrive.
type ComputeFn func(ctx context.Context) (*entity.CacheEntry, error)

// call is one in-flight computation; waiters block on done and then share
// entry/err with the leader.
type call struct {
	done  chan struct{}
	entry *entity.CacheEntry
	err   error
}

// Cache is constructed once per process and injected into the pipeline;
// tests substitute an in-memory repository behind it.
type Cache struct {
	repo   repository.ExtractionRepository
	front  *lru.Cache[string, *entity.CacheEntry]
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

func New(repo repository.ExtractionRepository, frontSize int, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if frontSize <= 0 {
		frontSize = 512
	}
	front, err := lru.New[string, *entity.CacheEntry](frontSize)
	if err != nil {
		return nil, err
	}
	return &Cache{
		repo:     repo,
		front:    front,
		logger:   logger,
		inflight: make(map[string]*call),
	}, nil
}

func keyString(key entity.CacheKey) string {
	return fmt.Sprintf("%s/%s/%d", key.DocumentHash, key.TemplateID, key.TemplateVersion)
}

// GetOrCompute returns the cached entry for key, computing it on a miss.
// Concurrent callers for one key share a single computation; its failure
// propagates to every waiter and leaves the key absent.
func (c *Cache) GetOrCompute(ctx context.Context, key entity.CacheKey, compute ComputeFn) (*entity.CacheEntry, error) {
	return c.run(ctx, key, compute, false)
}

// ForceRefresh bypasses the read probe but still honors the at-most-one
// guarantee for the write: concurrent forced callers share one recompute.
func (c *Cache) ForceRefresh(ctx context.Context, key entity.CacheKey, compute ComputeFn) (*entity.CacheEntry, error) {
	return c.run(ctx, key, compute, true)
}

// Probe reports the stored entry without computing anything.
func (c *Cache) Probe(ctx context.Context, key entity.CacheKey) (*entity.CacheEntry, error) {
	k := keyString(key)
	if entry, ok := c.front.Get(k); ok {
		return entry, nil
	}
	entry, err := c.repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	c.front.Add(k, entry)
	return entry, nil
}

func (c *Cache) run(ctx context.Context, key entity.CacheKey, compute ComputeFn, force bool) (*entity.CacheEntry, error) {
	k := keyString(key)

	if !force {
		if entry, err := c.Probe(ctx, key); err == nil {
			c.logger.Info("cache hit", "key", k)
			return entry, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	// Atomic check-and-reserve: exactly one caller becomes the leader for
	// a key; everyone else waits on its call.
	c.mu.Lock()
	if existing, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		return c.wait(ctx, existing)
	}
	leader := &call{done: make(chan struct{})}
	c.inflight[k] = leader
	c.mu.Unlock()

	leader.entry, leader.err = c.compute(ctx, key, k, compute, force)

	c.mu.Lock()
	delete(c.inflight, k)
	c.mu.Unlock()
	close(leader.done)

	return leader.entry, leader.err
}

func (c *Cache) compute(ctx context.Context, key entity.CacheKey, k string, compute ComputeFn, force bool) (*entity.CacheEntry, error) {
	if !force {
		// Double-check under the reservation: a previous leader may have
		// finished between our probe and reserve.
		if entry, err := c.repo.FindByKey(ctx, key); err == nil {
			c.front.Add(k, entry)
			return entry, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	entry, err := compute(ctx)
	if err != nil {
		// No poisoned entries: the key stays absent and every waiter sees
		// the same failure.
		c.logger.Warn("cache compute failed", "key", k, "error", err)
		return nil, err
	}
	entry.Key = key

	if force {
		if err := c.repo.ReplaceEntry(ctx, entry); err != nil {
			return nil, err
		}
	} else {
		if err := c.repo.SaveEntry(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// We held the only reservation for this key, so a duplicate
				// row means two writers raced: a synchronization bug.
				return nil, common.NewCacheConflictError(k)
			}
			return nil, err
		}
	}
	c.front.Add(k, entry)
	c.logger.Info("cache entry written", "key", k, "fields", len(entry.Fields), "forced", force)
	return entry, nil
}

func (c *Cache) wait(ctx context.Context, in *call) (*entity.CacheEntry, error) {
	select {
	case <-in.done:
		return in.entry, in.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
