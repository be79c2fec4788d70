package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/entity"
)

// In-memory implementations backing tests and the cache/pipeline design
// note that persistence must be substitutable without a database.

type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]entity.Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string]entity.Document)}
}

func (r *MemoryDocumentRepository) Save(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.Hash] = *doc
	return nil
}

func (r *MemoryDocumentRepository) FindByHash(_ context.Context, hash string) (*entity.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	out := doc
	return &out, nil
}

func (r *MemoryDocumentRepository) UpdateStatus(_ context.Context, hash string, status constants.DocStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[hash]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	r.docs[hash] = doc
	return nil
}

type MemoryCompoundRepository struct {
	mu        sync.RWMutex
	compounds map[string]entity.Compound
}

func NewMemoryCompoundRepository(compounds ...*entity.Compound) *MemoryCompoundRepository {
	r := &MemoryCompoundRepository{compounds: make(map[string]entity.Compound)}
	for _, c := range compounds {
		r.compounds[c.Code] = *c
	}
	return r
}

func (r *MemoryCompoundRepository) FindByCode(_ context.Context, code string) (*entity.Compound, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.compounds[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (r *MemoryCompoundRepository) Upsert(_ context.Context, compound *entity.Compound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compounds[compound.Code] = *compound
	return nil
}

func (r *MemoryCompoundRepository) ListActive(_ context.Context) ([]*entity.Compound, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Compound
	for _, c := range r.compounds {
		if c.Active {
			cc := c
			out = append(out, &cc)
		}
	}
	return out, nil
}

type MemoryTemplateRepository struct {
	mu        sync.RWMutex
	templates []*entity.Template
}

func NewMemoryTemplateRepository(templates ...*entity.Template) *MemoryTemplateRepository {
	return &MemoryTemplateRepository{templates: templates}
}

// Publish adds a template version. Published templates are immutable.
func (r *MemoryTemplateRepository) Publish(tpl *entity.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, tpl)
}

func (r *MemoryTemplateRepository) ListByCompound(_ context.Context, compoundCode string) ([]*entity.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Template
	for _, tpl := range r.templates {
		if tpl.CompoundCode == compoundCode {
			out = append(out, tpl)
		}
	}
	return out, nil
}

type MemoryExtractionRepository struct {
	mu      sync.RWMutex
	entries map[string]entity.CacheEntry
}

func NewMemoryExtractionRepository() *MemoryExtractionRepository {
	return &MemoryExtractionRepository{entries: make(map[string]entity.CacheEntry)}
}

func memKey(key entity.CacheKey) string {
	return fmt.Sprintf("%s/%s/%d", key.DocumentHash, key.TemplateID, key.TemplateVersion)
}

func (r *MemoryExtractionRepository) SaveEntry(_ context.Context, entry *entity.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memKey(entry.Key)
	if _, exists := r.entries[k]; exists {
		return ErrDuplicateEntry
	}
	r.entries[k] = *entry
	return nil
}

func (r *MemoryExtractionRepository) ReplaceEntry(_ context.Context, entry *entity.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[memKey(entry.Key)] = *entry
	return nil
}

func (r *MemoryExtractionRepository) FindByKey(_ context.Context, key entity.CacheKey) (*entity.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[memKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := entry
	return &out, nil
}

// Len reports the number of stored entries (test helper).
func (r *MemoryExtractionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
