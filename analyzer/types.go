package analyzer

import "github.com/seo-maskinen/backend/seo"

const maxScore = 100

// maxImprovements caps the improvement list returned to the UI
const maxImprovements = 6

// positiveGlyphs mark praise. Suggestions starting with one of them are not
// turned into improvements.
var positiveGlyphs = map[rune]bool{
	'✅': true,
	'🌟': true,
	'🎯': true,
	'📈': true,
}

const (
	strongFoundation = "🎉 Fantastiskt! Din webbplats har redan en stark SEO-grund."
	keepGoing        = "Fortsätt skapa kvalitativt innehåll som dina besökare älskar!"
	goodStart        = "👍 Bra start! Några små justeringar kan göra stor skillnad."
)

// metricAreas maps heuristic metrics onto the improvement areas shared with
// the LLM scorer.
var metricAreas = map[string]string{
	seo.MetricTitle:            seo.AreaTitle,
	seo.MetricMetaDescription:  seo.AreaMeta,
	seo.MetricHeadingStructure: seo.AreaH1,
	seo.MetricKeywordDensity:   seo.AreaContent,
	seo.MetricURLStructure:     seo.AreaTechnical,
}
