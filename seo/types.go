package seo

import "time"

// WebsiteURL is a normalized absolute page address. Plain strings are
// converted explicitly, never implicitly.
type WebsiteURL string

func (u WebsiteURL) String() string {
	return string(u)
}

// Headings holds the text of every h1, h2 and h3 on a page, in document order
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// PageData is one crawled page
type PageData struct {
	URL     WebsiteURL `json:"url"`
	Title   string     `json:"title"`
	H1      string     `json:"h1"`
	Content string     `json:"content"`
}

// ImageStats counts the page's img elements. It is informational and not
// scored.
type ImageStats struct {
	Total   int `json:"total"`
	WithAlt int `json:"withAlt"`
}

// CrawlData is what the crawler hands to the scorers
type CrawlData struct {
	URL            WebsiteURL `json:"url"`
	Keyword        string     `json:"keyword"`
	Title          string     `json:"title"`
	H1             string     `json:"h1"`
	Meta           string     `json:"meta"`
	Content        string     `json:"content"`
	LoadTime       int64      `json:"loadTime"`
	MobileFriendly bool       `json:"mobileFriendly"`
	Headings       Headings   `json:"headings"`
	Links          []string   `json:"links"`
	Language       string     `json:"language,omitempty"`
	Viewport       string     `json:"viewport,omitempty"`
	Images         ImageStats `json:"images"`
	Pages          []PageData `json:"pages"`
	Errors         []string   `json:"errors"`
}

// SeoMetric is one scored dimension. Suggestions start with a glyph; a
// positive glyph marks praise, anything else an action to take.
type SeoMetric struct {
	Name        string   `json:"name"`
	Score       int      `json:"score"`
	MaxScore    int      `json:"maxScore"`
	Description string   `json:"description"`
	Suggestions []string `json:"suggestions"`
}

// Metric keys used in SeoAnalysisResult.Metrics
const (
	MetricTitle            = "title"
	MetricMetaDescription  = "metaDescription"
	MetricHeadingStructure = "headingStructure"
	MetricKeywordDensity   = "keywordDensity"
	MetricURLStructure     = "urlStructure"
)

// MetricKeys lists the heuristic metrics in the order they are evaluated
var MetricKeys = []string{
	MetricTitle,
	MetricMetaDescription,
	MetricHeadingStructure,
	MetricKeywordDensity,
	MetricURLStructure,
}

// SeoAnalysisResult is the heuristic scorer's output
type SeoAnalysisResult struct {
	URL          WebsiteURL           `json:"url"`
	Keyword      string               `json:"keyword"`
	OverallScore int                  `json:"overallScore"`
	Metrics      map[string]SeoMetric `json:"metrics"`
	Improvements []string             `json:"improvements"`
	AnalyzedAt   time.Time            `json:"analyzedAt"`
}

// Improvement areas
const (
	AreaTitle     = "Titel"
	AreaH1        = "H1"
	AreaMeta      = "Meta"
	AreaContent   = "Innehåll"
	AreaTechnical = "Teknik"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Improvement is the canonical shape of a structured suggestion, whichever
// scorer produced it.
type Improvement struct {
	Area     string `json:"area"`
	Score    int    `json:"score"`
	Issue    string `json:"issue"`
	Solution string `json:"solution"`
	Priority string `json:"priority"`
}

// MetaSuggestions are rewritten title/description proposals
type MetaSuggestions struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// OpenAIAnalysisResult is the LLM scorer's output
type OpenAIAnalysisResult struct {
	OverallScore    int              `json:"overall_score"`
	TitleScore      int              `json:"title_score"`
	H1Score         int              `json:"h1_score"`
	MetaScore       int              `json:"meta_score"`
	ContentScore    int              `json:"content_score"`
	TechnicalScore  int              `json:"technical_score"`
	Improvements    []Improvement    `json:"improvements"`
	ContentIdeas    []string         `json:"content_ideas"`
	QuickWins       []string         `json:"quick_wins,omitempty"`
	MetaSuggestions *MetaSuggestions `json:"meta_suggestions,omitempty"`
	TokensUsed      int              `json:"tokens_used"`
}
