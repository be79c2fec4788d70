package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aimta/coa-processor/internal/entity"
)

func spec(ft entity.FieldType) entity.FieldSpec {
	return entity.FieldSpec{Name: "f", Type: ft}
}

func TestNormalize_Dates(t *testing.T) {
	cases := map[string]string{
		"2024-03-15":     "2024-03-15",
		"2024.03.15":     "2024-03-15",
		"2024/03/15":     "2024-03-15",
		"15 Mar 2024":    "2024-03-15",
		"Mar 15, 2024":   "2024-03-15",
		"March 15, 2024": "2024-03-15",
		"soon":           "soon", // unparseable passes through for the rule to flag
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(spec(entity.FieldTypeDate), in), "input %q", in)
	}
}

func TestNormalize_TemperatureAndRanges(t *testing.T) {
	// The classic Chinese-label storage value: full-width degree sign and a
	// spaced en-dash range collapse to the canonical form.
	assert.Equal(t, "2-8°C", Normalize(spec(entity.FieldTypeText), "2 – 8 ℃"))
	assert.Equal(t, "2-8°C", Normalize(spec(entity.FieldTypeText), "2-8°C"))
	assert.Equal(t, "-20°C", Normalize(spec(entity.FieldTypeText), "-20 ℃"))
}

func TestNormalize_Numbers(t *testing.T) {
	assert.Equal(t, "99.7%", Normalize(spec(entity.FieldTypeNumber), "99.7 %"))
	assert.Equal(t, "1250 ppm", Normalize(spec(entity.FieldTypeNumber), "1,250 ppm"))
	assert.Equal(t, "0.5", Normalize(spec(entity.FieldTypeNumber), "0.5"))
	assert.Equal(t, "n/a", Normalize(spec(entity.FieldTypeNumber), "n/a"))
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "White crystalline powder",
		Normalize(spec(entity.FieldTypeText), "  White   crystalline\n powder "))
	assert.Equal(t, "", Normalize(spec(entity.FieldTypeText), "   "))
}

func TestNumericValue(t *testing.T) {
	f, ok := NumericValue("99.7%")
	assert.True(t, ok)
	assert.InDelta(t, 99.7, f, 1e-9)

	f, ok = NumericValue("1250 ppm")
	assert.True(t, ok)
	assert.InDelta(t, 1250, f, 1e-9)

	_, ok = NumericValue("conforms")
	assert.False(t, ok)
}
