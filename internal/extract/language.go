package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aimta/coa-processor/constants"
)

// DetectLanguages classifies document text by script ratio. COA documents
// in this corpus are English, Chinese, or bilingual, so Han-vs-Latin
// coverage is the signal that matters for locator-hint selection.
func DetectLanguages(text string) []string {
	var han, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.IsLetter(r) && r < 0x024F:
			latin++
		}
	}
	total := han + latin
	if total == 0 {
		return nil
	}

	var langs []string
	// Most prominent script first.
	if han >= latin {
		langs = appendLang(langs, han, total, constants.LangChinese)
		langs = appendLang(langs, latin, total, constants.LangEnglish)
	} else {
		langs = appendLang(langs, latin, total, constants.LangEnglish)
		langs = appendLang(langs, han, total, constants.LangChinese)
	}
	return langs
}

// appendLang includes a language when its script covers at least 5% of the
// letters, enough to carry field labels in a bilingual document.
func appendLang(langs []string, count, total int, lang string) []string {
	if count*20 >= total {
		langs = append(langs, lang)
	}
	return langs
}

var (
	reDateish   = regexp.MustCompile(`\b20\d{2}[-./]\d{1,2}[-./]\d{1,2}\b`)
	reLotish    = regexp.MustCompile(`(?i)\b(lot|batch)\b|批号`)
	rePercent   = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
	reTableWord = regexp.MustCompile(`(?i)\b(result|specification|test|acceptance)\b|检测|结果`)
)

// heuristicQuality estimates whether extracted text looks like a usable
// COA: dates, lot/batch markers, percentages, and results-table vocabulary
// each add a share.
func heuristicQuality(txt string) float32 {
	score := float32(0.2) // base
	if reDateish.MatchString(txt) {
		score += 0.2
	}
	if reLotish.MatchString(txt) {
		score += 0.2
	}
	if rePercent.MatchString(txt) {
		score += 0.15
	}
	if reTableWord.MatchString(txt) {
		score += 0.15
	}
	if len(strings.TrimSpace(txt)) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
