package constants

// DocStatus is the canonical lifecycle state for rows in coa_documents.
type DocStatus string

// Stable values (store these exact strings in DB).
const (
	DocStatusReceived   DocStatus = "RECEIVED"   // bytes accepted, identity not yet recorded
	DocStatusRegistered DocStatus = "REGISTERED" // content hash recorded
	DocStatusQueued     DocStatus = "QUEUED"     // waiting for a pipeline worker
	DocStatusExtracting DocStatus = "EXTRACTING" // pipeline running (at most one per hash)
	DocStatusExtracted  DocStatus = "EXTRACTED"  // terminal success
	DocStatusFailed     DocStatus = "FAILED"     // terminal failure (re-queue is explicit)
)

// transitions is the allowed forward edge set. The lifecycle is monotonic:
// EXTRACTING -> EXTRACTING re-entry is not an edge. The two backward edges
// both target QUEUED: FAILED -> QUEUED for the explicit requeue path, and
// EXTRACTING -> QUEUED for a run whose result was aborted and discarded.
var transitions = map[DocStatus][]DocStatus{
	DocStatusReceived:   {DocStatusRegistered},
	DocStatusRegistered: {DocStatusQueued},
	DocStatusQueued:     {DocStatusExtracting},
	DocStatusExtracting: {DocStatusExtracted, DocStatusFailed, DocStatusQueued},
	DocStatusFailed:     {DocStatusQueued},
}

// CanTransition reports whether moving from -> to is a legal lifecycle edge.
func CanTransition(from, to DocStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends normal processing.
func IsTerminal(s DocStatus) bool {
	return s == DocStatusExtracted || s == DocStatusFailed
}

// ValidationOutcome is the per-field verdict recorded next to the score.
type ValidationOutcome string

const (
	OutcomePassed  ValidationOutcome = "PASSED"  // normalized value satisfies the rule
	OutcomeFlagged ValidationOutcome = "FLAGGED" // value present but fails the rule
	OutcomeFailed  ValidationOutcome = "FAILED"  // required field absent
)
