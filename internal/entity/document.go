package entity

import (
	"time"

	"github.com/aimta/coa-processor/constants"
)

// DocumentSource tags where the bytes came from.
type DocumentSource string

const (
	SourceLocal DocumentSource = "local" // watched folder
	SourceAPI   DocumentSource = "api"   // direct submission
)

// Document is one ingested COA PDF. Hash (hex SHA-256 of the raw bytes) is
// its identity: identical bytes dedupe to one document regardless of
// filename.
type Document struct {
	Hash         string
	ByteSize     int64
	Languages    []string
	Status       constants.DocStatus
	Source       DocumentSource
	CompoundCode string
	Region       constants.Region
	ReceivedAt   time.Time
	ErrorMessage string
}
