package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aimta/coa-processor/internal/entity"
)

var (
	reRangeDash = regexp.MustCompile(`\s*[-–]\s*`)
	reNumber    = regexp.MustCompile(`-?\d+(?:[.,]\d+)*(?:\.\d+)?`)
)

// dateLayouts are tried in order; COA documents mix ISO, dotted, and
// slashed date formats.
var dateLayouts = []string{
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Normalize cleans a raw value before validation, dispatching on the
// spec's declared data type.
func Normalize(spec entity.FieldSpec, raw string) string {
	v := collapseWhitespace(raw)
	if v == "" {
		return ""
	}
	switch spec.Type {
	case entity.FieldTypeDate:
		return normalizeDate(v)
	case entity.FieldTypeNumber:
		return normalizeNumber(v)
	case entity.FieldTypeEnum:
		return v
	default:
		return normalizeText(v)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// normalizeText canonicalizes unit symbols and range dashes, e.g.
// "2 – 8 ℃" -> "2-8°C".
func normalizeText(v string) string {
	v = strings.ReplaceAll(v, "℃", "°C")
	v = strings.ReplaceAll(v, "℉", "°F")
	v = strings.ReplaceAll(v, " °", "°")
	v = reRangeDash.ReplaceAllString(v, "-")
	return v
}

// normalizeDate parses common layouts and re-renders ISO-8601. Unparseable
// dates pass through unchanged so validation can flag them.
func normalizeDate(v string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return v
}

// normalizeNumber strips thousands separators but keeps any unit suffix
// ("99.7%", "3 ppm") with a single space before it.
func normalizeNumber(v string) string {
	loc := reNumber.FindStringIndex(v)
	if loc == nil {
		return v
	}
	num := strings.ReplaceAll(v[loc[0]:loc[1]], ",", "")
	unit := strings.TrimSpace(v[loc[1]:])
	if unit == "%" || unit == "" {
		return num + unit
	}
	return num + " " + unit
}

// NumericValue extracts the leading numeric component of a normalized
// value for range validation.
func NumericValue(v string) (float64, bool) {
	m := reNumber.FindString(v)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	return f, err == nil
}
