package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/aimta/coa-processor/internal/common"
)

// PDFExtractor extracts embedded text from PDF bytes, one region per page.
// Scanned PDFs without a text layer come back empty and fail the quality
// gate; rendering/OCR is an external capability, not implemented here.
type PDFExtractor struct {
	logger *slog.Logger
}

func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

func (e *PDFExtractor) Extract(ctx context.Context, raw []byte) (ContentResult, error) {
	// Enforce context deadline before heavy parsing.
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return ContentResult{}, ctx.Err()
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return ContentResult{}, common.NewContentExtractionError("unreadable PDF", err)
	}

	pages := reader.NumPage()
	var b strings.Builder
	regions := make([]LayoutRegion, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			e.logger.Warn("page text extraction failed", "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		regions = append(regions, LayoutRegion{Page: i, Text: text})
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(text)
	}

	full := b.String()
	if full == "" {
		return ContentResult{}, common.NewContentExtractionError(
			fmt.Sprintf("no extractable text in %d pages", pages), nil)
	}

	res := ContentResult{
		Text:      full,
		Regions:   regions,
		Languages: DetectLanguages(full),
		Pages:     pages,
		Quality:   heuristicQuality(full),
	}
	e.logger.Info("content extracted",
		"pages", pages, "regions", len(regions),
		"chars", len(full), "languages", res.Languages, "quality", res.Quality,
	)
	return res, nil
}
