// Package registry owns document identity and lifecycle. Identity is the
// hex SHA-256 of the raw bytes, so identical uploads dedupe to one
// document regardless of filename.
package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/repository"
)

// lockStripes bounds the transition lock set; the registry never holds one
// mutex per document, so memory stays flat over the process lifetime.
const lockStripes = 64

// Registry computes content identity and serializes lifecycle transitions
// per document hash.
type Registry struct {
	docs     repository.DocumentRepository
	logger   *slog.Logger
	maxBytes int64

	locks [lockStripes]sync.Mutex
}

func New(docs repository.DocumentRepository, maxBytes int64, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxUploadBytes
	}
	return &Registry{
		docs:     docs,
		logger:   logger,
		maxBytes: maxBytes,
	}
}

// lockFor returns the stripe serializing transitions for one hash. Two
// hashes may share a stripe; that only costs contention, never correctness.
func (r *Registry) lockFor(hash string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return &r.locks[h.Sum32()%lockStripes]
}

// Register validates raw bytes, computes the content hash, and records the
// document. isNew=false means the document was already known; its prior
// lifecycle state is kept.
func (r *Registry) Register(ctx context.Context, raw []byte, compoundCode string, region constants.Region, source entity.DocumentSource) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, common.NewIngestionError("empty document", nil)
	}
	if int64(len(raw)) > r.maxBytes {
		return "", false, common.NewIngestionError(
			fmt.Sprintf("document of %d bytes exceeds limit of %d", len(raw), r.maxBytes), nil)
	}
	if !bytes.HasPrefix(raw, []byte(constants.PDFSignature)) {
		return "", false, common.NewIngestionError("missing PDF signature", nil)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	l := r.lockFor(hash)
	l.Lock()
	defer l.Unlock()

	existing, err := r.docs.FindByHash(ctx, hash)
	if err == nil {
		r.logger.Info("document already registered", "hash", hash, "status", existing.Status)
		return hash, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", false, err
	}

	doc := &entity.Document{
		Hash:         hash,
		ByteSize:     int64(len(raw)),
		Status:       constants.DocStatusRegistered,
		Source:       source,
		CompoundCode: compoundCode,
		Region:       region,
		ReceivedAt:   time.Now().UTC(),
	}
	if err := r.docs.Save(ctx, doc); err != nil {
		return "", false, err
	}
	r.logger.Info("document registered", "hash", hash, "bytes", doc.ByteSize, "compound", compoundCode, "region", region)
	return hash, true, nil
}

// Get returns the current document record.
func (r *Registry) Get(ctx context.Context, hash string) (*entity.Document, error) {
	return r.docs.FindByHash(ctx, hash)
}

// transition applies one lifecycle edge under the per-hash lock.
func (r *Registry) transition(ctx context.Context, hash string, to constants.DocStatus, errorMessage string) error {
	l := r.lockFor(hash)
	l.Lock()
	defer l.Unlock()

	doc, err := r.docs.FindByHash(ctx, hash)
	if err != nil {
		return err
	}
	if !constants.CanTransition(doc.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for %s", doc.Status, to, hash)
	}
	if err := r.docs.UpdateStatus(ctx, hash, to, errorMessage); err != nil {
		return err
	}
	r.logger.Info("document transition", "hash", hash, "from", doc.Status, "to", to)
	return nil
}

// Enqueue moves REGISTERED -> QUEUED.
func (r *Registry) Enqueue(ctx context.Context, hash string) error {
	return r.transition(ctx, hash, constants.DocStatusQueued, "")
}

// BeginExtracting moves QUEUED -> EXTRACTING. A second concurrent attempt
// for the same hash fails here instead of re-entering the pipeline.
func (r *Registry) BeginExtracting(ctx context.Context, hash string) error {
	return r.transition(ctx, hash, constants.DocStatusExtracting, "")
}

// FinishExtracted moves EXTRACTING -> EXTRACTED.
func (r *Registry) FinishExtracted(ctx context.Context, hash string) error {
	return r.transition(ctx, hash, constants.DocStatusExtracted, "")
}

// FinishFailed moves EXTRACTING -> FAILED, recording the terminal error.
func (r *Registry) FinishFailed(ctx context.Context, hash string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.transition(ctx, hash, constants.DocStatusFailed, msg)
}

// RecordLanguages stores the languages detected during content
// extraction on the document record.
func (r *Registry) RecordLanguages(ctx context.Context, hash string, languages []string) error {
	l := r.lockFor(hash)
	l.Lock()
	defer l.Unlock()

	doc, err := r.docs.FindByHash(ctx, hash)
	if err != nil {
		return err
	}
	doc.Languages = languages
	return r.docs.Save(ctx, doc)
}

// Requeue resets a document to QUEUED: either an explicit retry of a
// FAILED document, or recovery of an EXTRACTING document whose run was
// aborted and its result discarded.
func (r *Registry) Requeue(ctx context.Context, hash string) error {
	return r.transition(ctx, hash, constants.DocStatusQueued, "")
}
