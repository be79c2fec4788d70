package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aimta/coa-processor/internal/cache"
	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/registry"
	"github.com/aimta/coa-processor/internal/template"
)

// Service is a tiny façade that produces XLSX bytes for extraction
// results, one row per extracted field.
type Service struct {
	registry *registry.Registry
	resolver *template.Resolver
	cache    *cache.Cache
	logger   *slog.Logger
}

func NewService(reg *registry.Registry, resolver *template.Resolver, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: reg, resolver: resolver, cache: c, logger: logger}
}

// ExportResultsXLSX returns an XLSX workbook for the given documents.
// Documents without a stored result get a single row carrying their
// lifecycle status so the sheet still accounts for every input.
func (s *Service) ExportResultsXLSX(ctx context.Context, hashes []string) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	defaultSheet := f.GetSheetName(0)
	if defaultSheet != sheet {
		_ = f.DeleteSheet(defaultSheet)
	}

	headers := []string{
		"Document",
		"Compound",
		"Region",
		"Status",
		"Field",
		"Raw Value",
		"Normalized Value",
		"Confidence",
		"Outcome",
		"Source Snippet",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	exported := 0
	for _, hash := range hashes {
		doc, err := s.registry.Get(ctx, hash)
		if err != nil {
			write(1, shortHash(hash))
			write(4, "UNKNOWN")
			row++
			continue
		}

		entry := s.storedEntry(ctx, doc)
		if entry == nil {
			write(1, shortHash(doc.Hash))
			write(2, doc.CompoundCode)
			write(3, string(doc.Region))
			write(4, string(doc.Status))
			row++
			continue
		}

		for _, field := range entry.Fields {
			write(1, shortHash(doc.Hash))
			write(2, doc.CompoundCode)
			write(3, string(doc.Region))
			write(4, string(doc.Status))
			write(5, field.FieldName)
			write(6, field.RawValue)
			write(7, field.NormalizedValue)
			write(8, fmt.Sprintf("%.2f", field.Confidence))
			write(9, string(field.Outcome))
			write(10, truncate(field.SourceSnippet, 140))
			row++
		}
		exported++
	}

	_ = f.SetColWidth(sheet, "A", "A", 14) // hash prefix
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "F", "G", 28)
	_ = f.SetColWidth(sheet, "H", "I", 12)
	_ = f.SetColWidth(sheet, "J", "J", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(hashes),
		"with_results", exported,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// storedEntry probes the cache for the document's current template
// version. Nothing is computed here; export reads what exists.
func (s *Service) storedEntry(ctx context.Context, doc *entity.Document) *entity.CacheEntry {
	lang := ""
	if len(doc.Languages) > 0 {
		lang = doc.Languages[0]
	}
	tpl, err := s.resolver.Resolve(ctx, doc.CompoundCode, doc.Region, lang)
	if err != nil {
		return nil
	}
	entry, err := s.cache.Probe(ctx, entity.CacheKey{
		DocumentHash:    doc.Hash,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
	})
	if err != nil {
		return nil
	}
	return entry
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
