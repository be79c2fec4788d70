package llm

import (
	"github.com/aimta/coa-processor/internal/entity"
)

// BuildExtractionJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. It is passed to the provider as a structured-output
// constraint and also used locally to validate the response.
//
// No field is schema-required: a required field the model omits is handled
// downstream (null candidate, confidence 0), not rejected here.
func BuildExtractionJSONSchema(tpl *entity.Template) map[string]any {
	props := make(map[string]any, len(tpl.Fields))
	for _, f := range tpl.Fields {
		props[f.Name] = fieldProp()
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func fieldProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"value":      map[string]any{"type": "string", "minLength": 1},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"snippet":    map[string]any{"type": "string"},
		},
		"required": []string{"value"},
	}
}
