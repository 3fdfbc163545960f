package llm

import (
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/seo-maskinen/backend/seo"
)

const systemPrompt = "Du är en svensk SEO-expert som hjälper småföretagare. " +
	"Skriv kortfattat, konkret och prioriterat. Ge praktiska åtgärder som kan göras utan utvecklare. " +
	"All output ska vara på svenska och returneras enbart som JSON enligt schemat."

const strictSuffix = "\n\nReturnera ENBART giltig JSON exakt enligt schemat. Inga extra tecken."

const notGiven = "(ej angivet)"

const responseSchema = `{
  "type": "object",
  "properties": {
    "scores": {
      "type": "object",
      "properties": {
        "overall": { "type": "number", "minimum": 0, "maximum": 100 },
        "title": { "type": "number", "minimum": 0, "maximum": 100 },
        "h1": { "type": "number", "minimum": 0, "maximum": 100 },
        "meta": { "type": "number", "minimum": 0, "maximum": 100 },
        "content": { "type": "number", "minimum": 0, "maximum": 100 },
        "technical": { "type": "number", "minimum": 0, "maximum": 100 }
      },
      "required": ["overall", "title", "h1", "meta", "content", "technical"]
    },
    "quickWins": { "type": "array", "items": { "type": "string" }, "maxItems": 5 },
    "improvements": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "area": { "type": "string", "enum": ["Titel", "H1", "Meta", "Innehåll", "Teknik"] },
          "issue": { "type": "string" },
          "fix": { "type": "string" },
          "impact": { "type": "string", "enum": ["låg", "medel", "hög"] }
        },
        "required": ["area", "issue", "fix", "impact"]
      },
      "maxItems": 10
    },
    "metaSuggestions": {
      "type": "object",
      "properties": {
        "title": { "type": "string" },
        "description": { "type": "string" }
      },
      "required": ["title", "description"]
    },
    "contentIdeas": { "type": "array", "items": { "type": "string" }, "maxItems": 5 },
    "tokensUsed": {
      "type": "object",
      "properties": {
        "prompt": { "type": "number" },
        "completion": { "type": "number" },
        "total": { "type": "number" }
      },
      "required": ["prompt", "completion", "total"]
    }
  },
  "required": ["scores", "quickWins", "improvements", "metaSuggestions", "contentIdeas", "tokensUsed"]
}`

// promptCrawl is the crawl payload shown to the model
type promptCrawl struct {
	URL            seo.WebsiteURL `json:"url"`
	Keyword        string         `json:"keyword"`
	Title          string         `json:"title"`
	H1             string         `json:"h1"`
	Meta           string         `json:"meta"`
	Content        string         `json:"content"`
	LoadTime       int64          `json:"loadTime"`
	MobileFriendly bool           `json:"mobileFriendly"`
	Pages          []seo.PageData `json:"pages"`
	Errors         []string       `json:"errors"`
}

func orNotGiven(s string) string {
	if strings.TrimSpace(s) == "" {
		return notGiven
	}
	return s
}

func buildMessages(crawl seo.CrawlData, opts Options) ([]openai.ChatCompletionMessage, error) {
	pages := crawl.Pages
	if pages == nil {
		pages = []seo.PageData{}
	}
	errs := crawl.Errors
	if errs == nil {
		errs = []string{}
	}
	payload, err := json.MarshalIndent(promptCrawl{
		URL:            crawl.URL,
		Keyword:        crawl.Keyword,
		Title:          crawl.Title,
		H1:             crawl.H1,
		Meta:           crawl.Meta,
		Content:        crawl.Content,
		LoadTime:       crawl.LoadTime,
		MobileFriendly: crawl.MobileFriendly,
		Pages:          pages,
		Errors:         errs,
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	language := opts.Language
	if language == "" {
		language = "sv"
	}

	var b strings.Builder
	b.WriteString("Analysera följande webbsideinnehåll och ge enbart JSON enligt schemat nedan. ")
	b.WriteString("Fokusera på nytta för en svensk småföretagare. ")
	b.WriteString("Mål: bättre synlighet, fler förfrågningar, tydligare budskap.\n\n")
	b.WriteString("Målsökord: " + orNotGiven(opts.TargetKeyword) + "\n")
	b.WriteString("Företagstyp: " + orNotGiven(opts.BusinessType) + "\n")
	b.WriteString("Plats: " + orNotGiven(opts.Location) + "\n")
	b.WriteString("Språk: " + language + "\n\n")
	b.WriteString("Schema (JSON):\n" + responseSchema + "\n\n")
	b.WriteString("Data:\n" + string(payload) + "\n\n")
	b.WriteString("Viktigt: Returnera enbart giltig JSON utan förklaringar eller kodblock.")

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}, nil
}

// strictMessages repeats the exchange with a harder JSON-only demand
func strictMessages(msgs []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	copy(out, msgs)
	last := len(out) - 1
	out[last].Content += strictSuffix
	return out
}
