package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aimta/coa-processor/internal/entity"
)

// SanitizeResponse normalizes a provider response so a strict schema can
// still accept it:
//   - drops fields the template does not define
//   - drops null/empty values
//   - unwraps bare string results into the {value: ...} envelope
//   - coerces numeric values and confidences to the expected types
//
// Only shape is repaired here; content validation happens in scoring.
func SanitizeResponse(tpl *entity.Template, raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	out := make(map[string]any, len(m))
	for name, v := range m {
		if _, known := tpl.Field(name); !known {
			dropped = append(dropped, name+"(unknown)")
			continue
		}
		cleaned, ok := cleanFieldResult(v)
		if !ok {
			dropped = append(dropped, name+"(empty)")
			continue
		}
		out[name] = cleaned
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return b, dropped, nil
}

func cleanFieldResult(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return nil, false
		}
		return map[string]any{"value": s}, true
	case float64:
		return map[string]any{"value": strconv.FormatFloat(t, 'f', -1, 64)}, true
	case map[string]any:
		cleaned := make(map[string]any, 3)
		val, ok := cleanValue(t["value"])
		if !ok {
			return nil, false
		}
		cleaned["value"] = val
		if c, ok := t["confidence"]; ok {
			if f, ok := toFloat(c); ok {
				cleaned["confidence"] = clamp01(f)
			}
		}
		if s, ok := t["snippet"].(string); ok && strings.TrimSpace(s) != "" {
			cleaned["snippet"] = strings.TrimSpace(s)
		}
		return cleaned, true
	default:
		return nil, false
	}
}

func cleanValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") {
			return "", false
		}
		return s, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
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

// ParseCandidates decodes a sanitized, schema-valid response into
// FieldCandidates in template field order. Required fields absent from the
// response come back as Missing candidates with confidence 0 so downstream
// scoring sees every required field.
func ParseCandidates(tpl *entity.Template, sanitized []byte) ([]entity.FieldCandidate, error) {
	var m map[string]struct {
		Value      string   `json:"value"`
		Confidence *float64 `json:"confidence"`
		Snippet    string   `json:"snippet"`
	}
	if err := json.Unmarshal(sanitized, &m); err != nil {
		return nil, fmt.Errorf("parse candidates: %w", err)
	}

	candidates := make([]entity.FieldCandidate, 0, len(tpl.Fields))
	for _, spec := range tpl.Fields {
		res, ok := m[spec.Name]
		if !ok {
			if spec.Required {
				candidates = append(candidates, entity.FieldCandidate{
					FieldName: spec.Name,
					Missing:   true,
				})
			}
			continue
		}
		conf := 0.5 // neutral default when the model reports none
		if res.Confidence != nil {
			conf = clamp01(*res.Confidence)
		}
		candidates = append(candidates, entity.FieldCandidate{
			FieldName:       spec.Name,
			RawValue:        res.Value,
			ModelConfidence: conf,
			SourceSnippet:   res.Snippet,
		})
	}
	return candidates, nil
}
