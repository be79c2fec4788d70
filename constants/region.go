package constants

// Region is the regulatory region a template is published for.
type Region string

const (
	RegionCN Region = "CN"
	RegionEU Region = "EU"
	RegionUS Region = "US"
)

// Regions lists the supported regions in display order.
var Regions = []Region{RegionCN, RegionEU, RegionUS}

// ParseRegion maps a raw code to a known region; ok is false for anything
// outside the supported set.
func ParseRegion(code string) (Region, bool) {
	switch Region(code) {
	case RegionCN, RegionEU, RegionUS:
		return Region(code), true
	}
	return "", false
}

// Language codes used for locator-hint selection. LangNeutral marks the
// fallback hint set a template may carry for undetected languages.
const (
	LangEnglish = "en"
	LangChinese = "zh"
	LangNeutral = ""
)
