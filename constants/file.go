package constants

import "strings"

// PDFSignature is the magic prefix every well-formed PDF starts with.
const PDFSignature = "%PDF-"

// MaxUploadBytes caps the size of a single COA upload (10MB, matching the
// upstream upload limit).
const MaxUploadBytes = 10 << 20

// EngineVersion identifies the extraction engine that produced a cache
// entry. Bump when prompt/scoring behavior changes in a way that should be
// auditable on stored results.
const EngineVersion = "coa-extract/1"

// AllowedExtensions holds the file extensions the folder watcher picks up.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
