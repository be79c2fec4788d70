package llm

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/aimta/coa-processor/internal/entity"
	"github.com/aimta/coa-processor/internal/extract"
)

func hintedTemplate() *entity.Template {
	return &entity.Template{
		ID:           uuid.New(),
		CompoundCode: "ASP-100",
		Version:      2,
		Fields: []entity.FieldSpec{
			{
				Name:     "storage_condition",
				Type:     entity.FieldTypeText,
				Required: true,
				Hints: map[string][]string{
					"en": {"Storage", "Store at"},
					"zh": {"储存条件", "贮藏"},
					"":   {"Storage condition"},
				},
			},
			{
				Name: "appearance",
				Type: entity.FieldTypeText,
				Hints: map[string][]string{
					"": {"Appearance"},
				},
			},
		},
	}
}

func TestBuildSystemPrompt_UsesDetectedLanguageHints(t *testing.T) {
	prompt := BuildSystemPrompt(hintedTemplate(), []string{"zh"})

	assert.Contains(t, prompt, "储存条件")
	assert.Contains(t, prompt, "贮藏")
	assert.NotContains(t, prompt, "Store at")
}

func TestBuildSystemPrompt_MergesBilingualHints(t *testing.T) {
	prompt := BuildSystemPrompt(hintedTemplate(), []string{"zh", "en"})

	assert.Contains(t, prompt, "储存条件")
	assert.Contains(t, prompt, "Store at")
}

func TestBuildSystemPrompt_FallsBackToNeutralHints(t *testing.T) {
	// appearance has only the neutral set; it must show up even when a
	// language was detected.
	prompt := BuildSystemPrompt(hintedTemplate(), []string{"en"})
	assert.Contains(t, prompt, "Appearance")

	// No detected languages at all: neutral set everywhere.
	prompt = BuildSystemPrompt(hintedTemplate(), nil)
	assert.Contains(t, prompt, "Storage condition")
}

func TestBuildSystemPrompt_CarriesStandardizationRules(t *testing.T) {
	prompt := BuildSystemPrompt(hintedTemplate(), nil)

	assert.Contains(t, prompt, "Conforms to reference standard")
	assert.Contains(t, prompt, "ISO-8601")
	assert.Contains(t, prompt, "storage_condition (text, required)")
	assert.Contains(t, prompt, "appearance (text)")
}

func TestBuildUserPrompt_Truncates(t *testing.T) {
	long := strings.Repeat("x", maxPromptChars+500)
	prompt := BuildUserPrompt(long, nil)

	assert.Less(t, len(prompt), maxPromptChars+200)
	assert.Contains(t, prompt, "(truncated)")
}

func TestBuildUserPrompt_MentionsRegions(t *testing.T) {
	prompt := BuildUserPrompt("short text", []extract.LayoutRegion{
		{Page: 1, Text: "page one"},
		{Page: 2, Text: "page two"},
	})
	assert.Contains(t, prompt, "2 page region(s)")
	assert.Contains(t, prompt, "short text")
}
