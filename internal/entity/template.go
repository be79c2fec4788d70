package entity

import (
	"github.com/google/uuid"

	"github.com/aimta/coa-processor/constants"
)

// FieldType is the declared data type of a template field. Normalization
// and validation both dispatch on it.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeDate   FieldType = "date"
	FieldTypeNumber FieldType = "number"
	FieldTypeEnum   FieldType = "enum"
)

// RuleKind tags the validation-rule variant carried by a FieldSpec.
type RuleKind string

const (
	RuleNone  RuleKind = "none"
	RuleRegex RuleKind = "regex"
	RuleRange RuleKind = "range"
	RuleEnum  RuleKind = "enum"
)

// ValidationRule is a tagged variant: exactly the fields for its kind are
// meaningful. Rules are evaluated through scoring.Validate, never ad hoc.
type ValidationRule struct {
	Kind    RuleKind
	Pattern string   // RuleRegex: anchored regular expression
	Min     float64  // RuleRange: inclusive lower bound
	Max     float64  // RuleRange: inclusive upper bound
	Allowed []string // RuleEnum: permitted normalized values
}

// FieldSpec is one field definition within a Template.
//
// Hints maps a language code ("en", "zh", or constants.LangNeutral for the
// fallback set) to anchor phrases that locate the field in document text.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	Hints    map[string][]string
	Rule     ValidationRule
}

// HintsFor returns the locator hints for lang, falling back to the
// language-neutral set when the language has no hints of its own.
func (f FieldSpec) HintsFor(lang string) []string {
	if hints := f.Hints[lang]; len(hints) > 0 {
		return hints
	}
	return f.Hints[constants.LangNeutral]
}

// Template is a versioned field schema bound to (compound, region).
// Templates are immutable once published; a new version supersedes the old
// one and invalidates cache entries keyed to it.
type Template struct {
	ID           uuid.UUID
	CompoundCode string
	Region       constants.Region
	Version      int
	Default      bool // compound-level fallback when no region match exists
	Fields       []FieldSpec
}

// Field returns the spec for name, or ok=false if the template does not
// define it.
func (t *Template) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
