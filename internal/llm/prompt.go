package llm

import (
	"fmt"
	"strings"

	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/extract"
)

const maxPromptChars = 12000

// BuildSystemPrompt composes the extraction instructions for a template,
// anchoring every field on its locator hints for the detected languages
// (language-neutral hints when no set matches).
func BuildSystemPrompt(tpl *entity.Template, languages []string) string {
	var b strings.Builder
	b.WriteString("You are an expert at extracting structured fields from Certificate of Analysis (COA) documents for pharmaceutical compounds. ")
	b.WriteString("Return ONLY JSON that matches the provided JSON Schema. ")
	b.WriteString(fmt.Sprintf("The document concerns compound %s (region %s, template v%d).\n\n", tpl.CompoundCode, tpl.Region, tpl.Version))

	b.WriteString("Extract the following fields. For each, report the exact value from the document, a confidence between 0 and 1, and the short source snippet it came from.\n")
	for _, f := range tpl.Fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(" (")
		b.WriteString(string(f.Type))
		if f.Required {
			b.WriteString(", required")
		}
		b.WriteString(")")
		if hints := hintsForLanguages(f, languages); len(hints) > 0 {
			b.WriteString("; look near: ")
			b.WriteString(strings.Join(hints, " | "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nSTANDARDIZATION RULES:\n")
	b.WriteString("- Use ISO-8601 dates (YYYY-MM-DD).\n")
	b.WriteString("- For identification tests that conform, use the full phrase \"Conforms to reference standard\".\n")
	b.WriteString("- Keep units with the value (%, ppm, °C).\n")
	b.WriteString("- For not-detected results use \"ND\"; for missing or unclear results omit the field.\n")
	b.WriteString("- Extract actual RESULTS, never acceptance criteria.\n")
	b.WriteString("- Never output null. If a field is not present, omit it.\n")
	return b.String()
}

// hintsForLanguages merges the locator hints for every detected language,
// falling back to the language-neutral set when none of them has hints.
func hintsForLanguages(f entity.FieldSpec, languages []string) []string {
	var hints []string
	seen := make(map[string]struct{})
	for _, lang := range languages {
		for _, h := range f.Hints[lang] {
			if _, dup := seen[h]; !dup {
				seen[h] = struct{}{}
				hints = append(hints, h)
			}
		}
	}
	if len(hints) == 0 {
		hints = f.HintsFor("")
	}
	return hints
}

// BuildUserPrompt packages the document text plus coarse layout hints,
// truncated to keep the request bounded.
func BuildUserPrompt(text string, regions []extract.LayoutRegion) string {
	var b strings.Builder
	if len(regions) > 0 {
		b.WriteString(fmt.Sprintf("Document has %d page region(s).\n", len(regions)))
	}
	b.WriteString("Document text:\n")
	if len(text) > maxPromptChars {
		b.WriteString(text[:maxPromptChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}
