package analyzer

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/seo-maskinen/backend/seo"
)

// Analyzer scores crawl data with fixed rules. It holds no state besides the
// clock used to stamp results, so equal input gives equal output.
type Analyzer struct {
	now func() time.Time
}

// New creates a new Analyzer instance
func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

// NewWithClock creates an Analyzer that stamps results with now()
func NewWithClock(now func() time.Time) *Analyzer {
	return &Analyzer{now: now}
}

// Analyze scores data against keyword. An empty keyword falls back to the
// keyword recorded in data.
func (a *Analyzer) Analyze(data *seo.CrawlData, keyword string) *seo.SeoAnalysisResult {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = strings.TrimSpace(data.Keyword)
	}

	headings := data.Headings
	if len(headings.H1) == 0 && data.H1 != "" {
		headings.H1 = []string{data.H1}
	}

	metrics := map[string]seo.SeoMetric{
		seo.MetricTitle:            analyzeTitle(data.Title, keyword),
		seo.MetricMetaDescription:  analyzeMetaDescription(data.Meta, keyword),
		seo.MetricHeadingStructure: analyzeHeadings(headings, keyword),
		seo.MetricKeywordDensity:   analyzeKeywordDensity(data.Content, keyword),
		seo.MetricURLStructure:     analyzeURL(string(data.URL), keyword),
	}

	return &seo.SeoAnalysisResult{
		URL:          data.URL,
		Keyword:      keyword,
		OverallScore: OverallScore(metrics),
		Metrics:      metrics,
		Improvements: generateImprovements(metrics),
		AnalyzedAt:   a.now().UTC(),
	}
}

// OverallScore is round(100 * Σscore / Σmax) over the given metrics
func OverallScore(metrics map[string]seo.SeoMetric) int {
	total, possible := 0, 0
	for _, key := range seo.MetricKeys {
		m, ok := metrics[key]
		if !ok {
			continue
		}
		total += m.Score
		possible += m.MaxScore
	}
	if possible == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(possible) * 100))
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	return min(score, maxScore)
}

func analyzeTitle(title, keyword string) seo.SeoMetric {
	metric := seo.SeoMetric{Name: "Title Tag", MaxScore: maxScore}
	var suggestions []string
	score := 0

	if title == "" {
		metric.Description = "Ingen titel hittades"
		metric.Suggestions = []string{"⚠️ Saknar titel - lägg till en title-tag för bättre SEO"}
		return metric
	}

	score += 40
	suggestions = append(suggestions, "✅ Bra! Du har en titel på sidan")

	switch length := utf8.RuneCountInString(title); {
	case length < 30:
		score += 20
		suggestions = append(suggestions, "💡 Titeln kunde vara lite längre (sikta på 30-60 tecken för optimal visning)")
	case length > 60:
		score += 30
		suggestions = append(suggestions, "✂️ Titeln är lite för lång - försök korta ner den till 30-60 tecken")
	default:
		score += 40
		suggestions = append(suggestions, "🎯 Perfekt längd på titeln! (30-60 tecken)")
	}

	if containsFold(title, keyword) {
		score += 20
		suggestions = append(suggestions, fmt.Sprintf("🌟 Fantastiskt! Ditt nyckelord \"%s\" finns redan i titeln", keyword))
	} else if keyword != "" {
		suggestions = append(suggestions, fmt.Sprintf("💭 Tips: Överväg att inkludera \"%s\" i titeln för ännu bättre SEO", keyword))
	}

	metric.Score = clamp(score)
	metric.Description = `"` + title + `"`
	metric.Suggestions = suggestions
	return metric
}

func analyzeMetaDescription(meta, keyword string) seo.SeoMetric {
	metric := seo.SeoMetric{Name: "Meta Description", MaxScore: maxScore}
	var suggestions []string
	score := 0

	if meta == "" {
		metric.Description = "Ingen meta description hittades"
		metric.Suggestions = []string{"⚠️ Saknar meta description - lägg till en för bättre klickfrekvens i sökresultat"}
		return metric
	}

	score += 40
	suggestions = append(suggestions, "✅ Toppen! Du har en meta description")

	switch length := utf8.RuneCountInString(meta); {
	case length < 120:
		score += 20
		suggestions = append(suggestions, "📏 Beskrivningen kunde vara längre (sikta på 150-160 tecken för bästa resultat)")
	case length > 160:
		score += 30
		suggestions = append(suggestions, "✂️ Beskrivningen är lite för lång - korta ner till 150-160 tecken så den inte klipps av")
	default:
		score += 40
		suggestions = append(suggestions, "🎯 Perfekt längd på beskrivningen! (150-160 tecken)")
	}

	if containsFold(meta, keyword) {
		score += 20
		suggestions = append(suggestions, fmt.Sprintf("🌟 Utmärkt! Ditt nyckelord \"%s\" finns redan i beskrivningen", keyword))
	} else if keyword != "" {
		suggestions = append(suggestions, fmt.Sprintf("💭 Förslag: Lägg till \"%s\" i beskrivningen för att förstärka relevansen", keyword))
	}

	metric.Score = clamp(score)
	metric.Description = `"` + meta + `"`
	metric.Suggestions = suggestions
	return metric
}

// analyzeHeadings scores the h1-h3 outline. A page without an H1 scores 0 and
// gets no further heading advice.
func analyzeHeadings(h seo.Headings, keyword string) seo.SeoMetric {
	metric := seo.SeoMetric{
		Name:        "Rubrikstruktur",
		MaxScore:    maxScore,
		Description: fmt.Sprintf("H1: %d, H2: %d, H3: %d", len(h.H1), len(h.H2), len(h.H3)),
	}
	var suggestions []string
	score := 0

	switch len(h.H1) {
	case 0:
		metric.Suggestions = []string{"⚠️ Saknar H1-rubrik - lägg till en huvudrubrik för sidan"}
		return metric
	case 1:
		score = 50
		suggestions = append(suggestions, "✅ Perfekt! Du har exakt en H1-rubrik")
		if containsFold(h.H1[0], keyword) {
			score += 20
			suggestions = append(suggestions, fmt.Sprintf("🌟 Fantastiskt! \"%s\" finns redan i H1-rubriken", keyword))
		} else if keyword != "" {
			suggestions = append(suggestions, fmt.Sprintf("💭 Tips: Överväg att inkludera \"%s\" i H1-rubriken för starkare fokus", keyword))
		}
	default:
		score = 40
		suggestions = append(suggestions, "🤔 Du har flera H1-rubriker - använd bara en per sida för bästa SEO")
	}

	if len(h.H2) > 0 {
		score += 15
		suggestions = append(suggestions, fmt.Sprintf("✅ Bra struktur! Sidan har %d H2-rubriker", len(h.H2)))
	} else {
		suggestions = append(suggestions, "📝 Lägg till H2-rubriker för att organisera innehållet bättre")
	}

	if len(h.H3) > 0 {
		score += 15
		suggestions = append(suggestions, fmt.Sprintf("✅ Utmärkt hierarki! %d H3-rubriker ger bra struktur", len(h.H3)))
	} else {
		suggestions = append(suggestions, "🔗 H3-rubriker kan hjälpa till att dela upp längre avsnitt")
	}

	metric.Score = clamp(score)
	metric.Suggestions = suggestions
	return metric
}

func analyzeKeywordDensity(content, keyword string) seo.SeoMetric {
	metric := seo.SeoMetric{Name: "Nyckelordsdensitet", MaxScore: maxScore}

	words := strings.Fields(strings.ToLower(content))
	if keyword == "" || len(words) == 0 {
		metric.Score = 50
		metric.Description = "Kunde inte analysera nyckelordsdensitet"
		metric.Suggestions = []string{"💡 Ange ett nyckelord för att få en komplett analys"}
		return metric
	}

	needle := strings.ToLower(keyword)
	count := 0
	for _, w := range words {
		if strings.Contains(w, needle) {
			count++
		}
	}
	density := float64(count) / float64(len(words)) * 100

	var suggestions []string
	switch {
	case count == 0:
		metric.Score = 10
		suggestions = append(suggestions,
			fmt.Sprintf("🔍 Nyckelordet \"%s\" hittades inte i innehållet", keyword),
			"💭 Försök inkludera det naturligt i texten för bättre relevans")
	case density < 1:
		metric.Score = 60
		times := "gång"
		if count > 1 {
			times = "gånger"
		}
		suggestions = append(suggestions,
			fmt.Sprintf("📈 Bra start! \"%s\" förekommer %d %s", keyword, count, times),
			"💡 Du kan använda det lite oftare för starkare signaler (sikta på 1-3%)")
	case density > 3:
		metric.Score = 70
		suggestions = append(suggestions,
			fmt.Sprintf("⚠️ \"%s\" används ganska ofta (%.1f%%)", keyword, density),
			"🎯 Minska lite för att undvika att det känns onaturligt (1-3% är optimalt)")
	default:
		metric.Score = 100
		suggestions = append(suggestions,
			fmt.Sprintf("🌟 Perfekt balans! \"%s\" används lagom ofta (%.1f%%)", keyword, density),
			"✅ Bra nyckelordsdensitet som känns naturlig")
	}

	metric.Score = clamp(metric.Score)
	metric.Description = fmt.Sprintf("%.1f%% (%d förekomster)", density, count)
	metric.Suggestions = suggestions
	return metric
}

func analyzeURL(rawURL, keyword string) seo.SeoMetric {
	metric := seo.SeoMetric{Name: "URL-struktur", MaxScore: maxScore, Description: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		metric.Score = 20
		metric.Suggestions = []string{"⚠️ Kunde inte analysera URL-formatet"}
		return metric
	}
	path := u.EscapedPath()

	score := 30
	suggestions := []string{"✅ URL:en är tillgänglig och fungerande"}

	if len(path) > 100 {
		score += 20
		suggestions = append(suggestions, "📏 URL:en är lite lång - kortare URL:er är ofta bättre för SEO")
	} else {
		score += 40
		suggestions = append(suggestions, "🎯 Bra URL-längd som är lätt att komma ihåg och dela")
	}

	if containsFold(u.Path, keyword) {
		score += 30
		suggestions = append(suggestions, fmt.Sprintf("🌟 Fantastiskt! \"%s\" finns redan i URL:en", keyword))
	} else if keyword != "" {
		suggestions = append(suggestions, fmt.Sprintf("💭 Tips: Om möjligt, inkludera \"%s\" i URL:en för extra relevans", keyword))
	}

	switch {
	case strings.Contains(path, "_"):
		suggestions = append(suggestions, "🔧 Bindestreck (-) är bättre än understreck (_) för SEO")
	case strings.Contains(path, "-"):
		suggestions = append(suggestions, "✅ Bra! Använder bindestreck för tydlig ord-separation")
	case path == "" || path == "/":
		suggestions = append(suggestions, "🏠 Det här är startsidan - överväg beskrivande URL:er för undersidor")
	}

	metric.Score = clamp(score)
	metric.Suggestions = suggestions
	return metric
}

func isPositive(suggestion string) bool {
	r, _ := utf8.DecodeRuneInString(suggestion)
	return positiveGlyphs[r]
}

// stripGlyph removes leading emoji, variation selectors and joiners
func stripGlyph(s string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.Is(unicode.So, r) || r == '\uFE0F' || r == '\u200D' || unicode.IsSpace(r)
	}))
}

func generateImprovements(metrics map[string]seo.SeoMetric) []string {
	improvements := []string{}
	seen := make(map[string]bool)
	total := 0

	for _, key := range seo.MetricKeys {
		metric := metrics[key]
		total += metric.Score
		for _, s := range metric.Suggestions {
			if isPositive(s) {
				continue
			}
			clean := stripGlyph(s)
			if clean == "" || seen[clean] {
				continue
			}
			seen[clean] = true
			improvements = append(improvements, clean)
		}
	}

	avg := float64(total) / float64(len(seo.MetricKeys))
	switch {
	case len(improvements) == 0 || avg >= 80:
		improvements = append([]string{strongFoundation}, improvements...)
		if len(improvements) == 1 {
			improvements = append(improvements, keepGoing)
		}
	case avg >= 60:
		improvements = append([]string{goodStart}, improvements...)
	}

	if len(improvements) > maxImprovements {
		improvements = improvements[:maxImprovements]
	}
	return improvements
}

// StructuredImprovements turns the actionable suggestions of every metric into
// canonical improvements, so heuristic results can be stored and rendered the
// same way as model output.
func StructuredImprovements(result *seo.SeoAnalysisResult) []seo.Improvement {
	out := []seo.Improvement{}
	seen := make(map[string]bool)

	for _, key := range seo.MetricKeys {
		metric, ok := result.Metrics[key]
		if !ok {
			continue
		}
		for _, s := range metric.Suggestions {
			if isPositive(s) {
				continue
			}
			issue := stripGlyph(s)
			if issue == "" || seen[issue] {
				continue
			}
			seen[issue] = true
			out = append(out, seo.Improvement{
				Area:     metricAreas[key],
				Score:    metric.Score,
				Issue:    issue,
				Solution: issue,
				Priority: priorityFor(metric.Score),
			})
		}
	}
	return out
}

func priorityFor(score int) string {
	switch {
	case score < 50:
		return seo.PriorityHigh
	case score < 80:
		return seo.PriorityMedium
	default:
		return seo.PriorityLow
	}
}
