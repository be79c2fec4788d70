package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

type submission struct {
	compound string
	region   constants.Region
	size     int
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted map[string]submission // hash -> details
	processed []string
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{submitted: make(map[string]submission)}
}

func (f *fakeSubmitter) Submit(_ context.Context, raw []byte, compound string, region constants.Region, _ entity.DocumentSource) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := compound + "/" + string(region) + "/" + string(rune('a'+len(f.submitted)))
	for h, s := range f.submitted {
		if s.size == len(raw) && s.compound == compound {
			return h, false, nil
		}
	}
	f.submitted[hash] = submission{compound: compound, region: region, size: len(raw)}
	return hash, true, nil
}

func (f *fakeSubmitter) ProcessDocument(_ context.Context, hash string) (*entity.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, hash)
	return &entity.CacheEntry{}, nil
}

func writeFile(t *testing.T, root string, rel string, body string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRoutingFromPath(t *testing.T) {
	compound, region := routingFromPath("/data/coa/ASP-100/EU/batch-42.pdf")
	assert.Equal(t, "ASP-100", compound)
	assert.Equal(t, constants.RegionEU, region)

	// Lowercase region directory still parses.
	compound, region = routingFromPath("/data/coa/ASP-100/cn/batch-42.pdf")
	assert.Equal(t, "ASP-100", compound)
	assert.Equal(t, constants.RegionCN, region)

	// No region segment: nearest directory is the compound, region empty.
	compound, region = routingFromPath("/data/coa/ASP-100/batch-42.pdf")
	assert.Equal(t, "ASP-100", compound)
	assert.Equal(t, constants.Region(""), region)
}

func TestIngestPath(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "ASP-100/EU/doc.pdf", "%PDF-1.7 body")
	sub := newFakeSubmitter()
	ing := NewIngestor(sub, nil)

	res, err := ing.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.NotEmpty(t, res.Hash)

	s := sub.submitted[res.Hash]
	assert.Equal(t, "ASP-100", s.compound)
	assert.Equal(t, constants.RegionEU, s.region)
}

func TestIngestPath_RejectsUnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "ASP-100/EU/doc.txt", "plain text")
	ing := NewIngestor(newFakeSubmitter(), nil)

	_, err := ing.IngestPath(context.Background(), path)
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ASP-100/EU/a.pdf", "%PDF-1.7 aaa")
	writeFile(t, root, "ASP-100/CN/b.pdf", "%PDF-1.7 bbbb")
	writeFile(t, root, "ASP-100/EU/notes.txt", "ignored")
	writeFile(t, root, ".archive/old.pdf", "%PDF-1.7 hidden")

	sub := newFakeSubmitter()
	ing := NewIngestor(sub, nil)

	results, stats, err := ing.IngestDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, stats.Matched)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Deduplicated)
	assert.Len(t, sub.submitted, 2)
}

func TestIngestDirectory_RequiresRoot(t *testing.T) {
	ing := NewIngestor(newFakeSubmitter(), nil)
	_, _, err := ing.IngestDirectory(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRun_ProcessesWatchedFiles(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "ASP-100/EU/doc.pdf", "%PDF-1.7 body")

	sub := newFakeSubmitter()
	ing := NewIngestor(sub, nil)

	events := make(chan string, 1)
	events <- path
	close(events)

	done := make(chan struct{})
	go func() {
		ing.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not drain the event channel")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.processed, 1)
	assert.Len(t, sub.submitted, 1)
}
