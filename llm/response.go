package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/seo-maskinen/backend/seo"
)

// validatedResponse is model output that passed validateResponse. Nothing
// else in the package reads raw model JSON.
type validatedResponse struct {
	Scores          scores
	QuickWins       []string
	Improvements    []seo.Improvement
	MetaSuggestions *seo.MetaSuggestions
	ContentIdeas    []string
	TokensTotal     int
}

type scores struct {
	Overall, Title, H1, Meta, Content, Technical int
}

// ValidationError says which field made a response unusable
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid response: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) (*validatedResponse, error) {
	return nil, &ValidationError{Field: field, Reason: reason}
}

var validAreas = map[string]bool{
	seo.AreaTitle:     true,
	seo.AreaH1:        true,
	seo.AreaMeta:      true,
	seo.AreaContent:   true,
	seo.AreaTechnical: true,
}

// priorities accepts both the Swedish impact values and the English ones
var priorities = map[string]string{
	"låg":    seo.PriorityLow,
	"medel":  seo.PriorityMedium,
	"hög":    seo.PriorityHigh,
	"low":    seo.PriorityLow,
	"medium": seo.PriorityMedium,
	"high":   seo.PriorityHigh,
}

// stripCodeFences drops Markdown fences and keeps the text between the first
// '{' and the last '}'.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToLower(s), "```json") {
		s = s[len("```json"):]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		return s[first : last+1]
	}
	return s
}

func parseContent(content string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	return obj, nil
}

func numberInRange(v any, lo, hi float64) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < lo || f > hi {
		return 0, false
	}
	return f, true
}

func stringArray(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func nonEmptyString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// validateResponse checks every field the service relies on. It returns the
// typed response or a *ValidationError naming the first bad field.
func validateResponse(obj map[string]any) (*validatedResponse, error) {
	res := &validatedResponse{}

	rawScores, ok := obj["scores"].(map[string]any)
	if !ok {
		return invalid("scores", "missing or not an object")
	}
	targets := []struct {
		key string
		dst *int
	}{
		{"overall", &res.Scores.Overall},
		{"title", &res.Scores.Title},
		{"h1", &res.Scores.H1},
		{"meta", &res.Scores.Meta},
		{"content", &res.Scores.Content},
		{"technical", &res.Scores.Technical},
	}
	for _, t := range targets {
		f, ok := numberInRange(rawScores[t.key], 0, 100)
		if !ok {
			return invalid("scores."+t.key, "must be a number in [0,100]")
		}
		*t.dst = int(math.Round(f))
	}

	if res.QuickWins, ok = stringArray(obj["quickWins"]); !ok {
		return invalid("quickWins", "must be an array of strings")
	}

	rawImprovements, ok := obj["improvements"].([]any)
	if !ok {
		return invalid("improvements", "must be an array")
	}
	res.Improvements = make([]seo.Improvement, 0, len(rawImprovements))
	for i, item := range rawImprovements {
		field := fmt.Sprintf("improvements[%d]", i)
		rec, ok := item.(map[string]any)
		if !ok {
			return invalid(field, "must be an object")
		}
		area, _ := rec["area"].(string)
		if !validAreas[area] {
			return invalid(field+".area", "must be one of Titel, H1, Meta, Innehåll, Teknik")
		}
		issue, ok := nonEmptyString(rec, "issue")
		if !ok {
			return invalid(field+".issue", "must be a non-empty string")
		}
		fix, ok := nonEmptyString(rec, "fix", "solution")
		if !ok {
			return invalid(field+".fix", "must be a non-empty string")
		}
		rawPriority, _ := nonEmptyString(rec, "impact", "priority")
		priority, ok := priorities[strings.ToLower(rawPriority)]
		if !ok {
			return invalid(field+".impact", "must be låg, medel or hög")
		}
		score := 50
		if f, ok := numberInRange(rec["score"], 0, 100); ok {
			score = int(math.Round(f))
		}
		res.Improvements = append(res.Improvements, seo.Improvement{
			Area:     area,
			Score:    score,
			Issue:    issue,
			Solution: fix,
			Priority: priority,
		})
	}

	if raw, present := obj["metaSuggestions"]; present {
		rec, ok := raw.(map[string]any)
		if !ok {
			return invalid("metaSuggestions", "must be an object")
		}
		title, tok := rec["title"].(string)
		desc, dok := rec["description"].(string)
		if !tok || !dok {
			return invalid("metaSuggestions", "title and description must be strings")
		}
		res.MetaSuggestions = &seo.MetaSuggestions{Title: title, Description: desc}
	}

	if res.ContentIdeas, ok = stringArray(obj["contentIdeas"]); !ok {
		return invalid("contentIdeas", "must be an array of strings")
	}

	tokens, ok := obj["tokensUsed"].(map[string]any)
	if !ok {
		return invalid("tokensUsed", "missing or not an object")
	}
	for _, k := range []string{"prompt", "completion", "total"} {
		if _, ok := numberInRange(tokens[k], 0, math.MaxFloat64); !ok {
			return invalid("tokensUsed."+k, "must be a non-negative number")
		}
	}
	total, _ := tokens["total"].(float64)
	res.TokensTotal = int(total)

	return res, nil
}

// toResult maps a validated response onto the canonical result. usageTotal
// is the API's own token count and wins over what the model reported.
func (v *validatedResponse) toResult(usageTotal int) *seo.OpenAIAnalysisResult {
	tokens := usageTotal
	if tokens <= 0 {
		tokens = v.TokensTotal
	}
	ideas := v.ContentIdeas
	if ideas == nil {
		ideas = []string{}
	}
	return &seo.OpenAIAnalysisResult{
		OverallScore:    v.Scores.Overall,
		TitleScore:      v.Scores.Title,
		H1Score:         v.Scores.H1,
		MetaScore:       v.Scores.Meta,
		ContentScore:    v.Scores.Content,
		TechnicalScore:  v.Scores.Technical,
		Improvements:    v.Improvements,
		ContentIdeas:    ideas,
		QuickWins:       v.QuickWins,
		MetaSuggestions: v.MetaSuggestions,
		TokensUsed:      tokens,
	}
}
