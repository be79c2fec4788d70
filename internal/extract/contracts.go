package extract

import "context"

// LayoutRegion is a coarse layout hint: the text of one page region. The
// pipeline forwards regions to the extraction provider as prompt hints; it
// never interprets them itself.
type LayoutRegion struct {
	Page int
	Text string
}

// ContentResult is the normalized output of content extraction.
type ContentResult struct {
	Text      string
	Regions   []LayoutRegion
	Languages []string // ISO 639-1 codes, most prominent first
	Pages     int
	Quality   float32 // heuristic text-quality signal in [0,1]
}

// ContentExtractor turns raw document bytes into normalized text/layout.
// This is delegation to an external capability; failures are wrapped as
// ContentExtractionError by the caller and are terminal for the document.
type ContentExtractor interface {
	Extract(ctx context.Context, raw []byte) (ContentResult, error)
}
