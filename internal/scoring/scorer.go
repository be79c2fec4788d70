// Package scoring combines model-reported confidence with schema
// validation into the final per-field score.
package scoring

import (
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aimta/coa-processor/constants"
	"github.com/aimta/coa-processor/internal/common"
	"github.com/aimta/coa-processor/internal/entity"
)

// Combiner folds the model confidence and validation outcome into the
// final score. Injectable because the right weighting is deployment
// policy, not pipeline logic.
type Combiner func(modelConfidence float64, outcome constants.ValidationOutcome) float64

// DefaultCombiner multiplies the model confidence by a penalty when the
// validation rule fails, and zeroes required-absent fields.
func DefaultCombiner(flaggedPenalty float64) Combiner {
	return func(modelConfidence float64, outcome constants.ValidationOutcome) float64 {
		switch outcome {
		case constants.OutcomeFailed:
			return 0
		case constants.OutcomeFlagged:
			return clamp01(modelConfidence * flaggedPenalty)
		default:
			return clamp01(modelConfidence)
		}
	}
}

type Scorer struct {
	combine Combiner
	logger  *slog.Logger
}

func NewScorer(combine Combiner, logger *slog.Logger) *Scorer {
	if combine == nil {
		combine = DefaultCombiner(0.5)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{combine: combine, logger: logger}
}

// Score normalizes, validates, and scores one candidate. The validation
// outcome is recorded independently of the numeric score so callers can
// tell "low confidence but valid format" from "invalid format".
func (s *Scorer) Score(spec entity.FieldSpec, cand entity.FieldCandidate) entity.ExtractedField {
	if cand.Missing {
		return entity.ExtractedField{
			FieldName:  spec.Name,
			Confidence: 0,
			Outcome:    constants.OutcomeFailed,
		}
	}

	normalized := Normalize(spec, cand.RawValue)
	outcome := constants.OutcomePassed
	ok, ruleErr := Validate(spec.Rule, normalized)
	switch {
	case ruleErr != nil:
		// A broken rule is a template configuration problem; the field is
		// flagged for review, never dropped.
		outcome = constants.OutcomeFlagged
		s.logger.Warn("validation rule unusable, field flagged",
			"field", spec.Name, "error", ruleErr)
	case !ok:
		outcome = constants.OutcomeFlagged
		s.logger.Warn("field failed validation rule",
			"field", spec.Name, "rule", spec.Rule.Kind, "value", normalized)
	}

	return entity.ExtractedField{
		FieldName:       spec.Name,
		RawValue:        cand.RawValue,
		NormalizedValue: normalized,
		Confidence:      s.combine(cand.ModelConfidence, outcome),
		SourceSnippet:   cand.SourceSnippet,
		Outcome:         outcome,
	}
}

// patternCache holds compiled regex rules. Templates are immutable once
// published, so a pattern compiles once per process, not once per field.
var patternCache = newPatternCache()

func newPatternCache() *lru.Cache[string, *regexp.Regexp] {
	c, _ := lru.New[string, *regexp.Regexp](256)
	return c
}

func compiledPattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Add(pattern, re)
	return re, nil
}

// Validate evaluates the tagged rule variant against a normalized value.
// This is the single dispatch point; no per-field branching elsewhere. An
// unusable rule (invalid regex) is reported as a ValidationError so the
// caller can tell "value fails the rule" from "rule cannot run".
func Validate(rule entity.ValidationRule, value string) (bool, error) {
	switch rule.Kind {
	case entity.RuleRegex:
		re, err := compiledPattern(rule.Pattern)
		if err != nil {
			return false, common.NewValidationError("invalid pattern "+rule.Pattern, err)
		}
		return re.MatchString(value), nil
	case entity.RuleRange:
		f, ok := NumericValue(value)
		return ok && f >= rule.Min && f <= rule.Max, nil
	case entity.RuleEnum:
		for _, allowed := range rule.Allowed {
			if strings.EqualFold(value, allowed) {
				return true, nil
			}
		}
		return false, nil
	default:
		return true, nil
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
