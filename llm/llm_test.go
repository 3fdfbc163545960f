package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seo-maskinen/backend/seo"
)

const validReply = `{
  "scores": {"overall": 72.4, "title": 80, "h1": 60, "meta": 55, "content": 70, "technical": 90},
  "quickWins": ["Lägg till sökordet i titeln"],
  "improvements": [
    {"area": "Titel", "issue": "Titeln saknar sökord", "fix": "Skriv om titeln", "impact": "hög"}
  ],
  "metaSuggestions": {"title": "SEO i Stockholm", "description": "Vi hjälper småföretag."},
  "contentIdeas": ["Skriv en guide om lokal SEO"],
  "tokensUsed": {"prompt": 10, "completion": 20, "total": 30}
}`

// fakeOpenAI answers chat completions with a scripted sequence of replies
type fakeOpenAI struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []string
}

type fakeReply struct {
	status  int
	content string
	usage   int
	delay   time.Duration
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	idx := len(f.requests)
	f.requests = append(f.requests, string(body))
	reply := f.replies[len(f.replies)-1]
	if idx < len(f.replies) {
		reply = f.replies[idx]
	}
	f.mu.Unlock()

	if reply.delay > 0 {
		select {
		case <-time.After(reply.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if reply.status != 0 && reply.status != http.StatusOK {
		w.WriteHeader(reply.status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "upstream said no", "type": "test_error"},
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": reply.content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     reply.usage / 2,
			"completion_tokens": reply.usage - reply.usage/2,
			"total_tokens":      reply.usage,
		},
	})
}

func (f *fakeOpenAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestScorer(t *testing.T, replies ...fakeReply) (*Scorer, *fakeOpenAI) {
	t.Helper()
	fake := &fakeOpenAI{replies: replies}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s := NewScorer(Config{
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/v1",
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
	})
	return s, fake
}

func testCrawl() seo.CrawlData {
	return seo.CrawlData{
		URL:     "https://example.se/",
		Keyword: "seo",
		Title:   "Example",
		H1:      "Välkommen",
		Content: "Vi erbjuder SEO i Stockholm.",
	}
}

func TestAnalyzeWithoutKey(t *testing.T) {
	s := NewScorer(Config{APIKey: "  "})
	if s.Enabled() {
		t.Fatal("scorer without key should be disabled")
	}
	_, err := s.Analyze(context.Background(), testCrawl(), Options{})
	if CodeOf(err) != CodeNoAPIKey {
		t.Fatalf("expected NO_API_KEY, got %v", err)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	s, fake := newTestScorer(t, fakeReply{content: validReply, usage: 1234})

	res, err := s.Analyze(context.Background(), testCrawl(), Options{TargetKeyword: "seo", Location: "Stockholm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OverallScore != 72 || res.TechnicalScore != 90 {
		t.Errorf("unexpected scores %+v", res)
	}
	if res.TokensUsed != 1234 {
		t.Errorf("API usage should win, got %d", res.TokensUsed)
	}
	if len(res.Improvements) != 1 || res.Improvements[0].Priority != seo.PriorityHigh {
		t.Errorf("unexpected improvements %+v", res.Improvements)
	}
	if res.MetaSuggestions == nil || res.MetaSuggestions.Title != "SEO i Stockholm" {
		t.Errorf("unexpected meta suggestions %+v", res.MetaSuggestions)
	}

	body := fake.requests[0]
	for _, want := range []string{"Målsökord: seo", "Företagstyp: (ej angivet)", "Plats: Stockholm", "json_object"} {
		if !strings.Contains(body, want) {
			t.Errorf("request should contain %q", want)
		}
	}
}

func TestAnalyzeTemperature(t *testing.T) {
	sent := func(t *testing.T, opts Options) (float64, bool) {
		t.Helper()
		s, fake := newTestScorer(t, fakeReply{content: validReply, usage: 10})
		if _, err := s.Analyze(context.Background(), testCrawl(), opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var req map[string]any
		if err := json.Unmarshal([]byte(fake.requests[0]), &req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		v, ok := req["temperature"].(float64)
		return v, ok
	}

	t.Run("Default", func(t *testing.T) {
		v, ok := sent(t, Options{})
		if !ok || v < 0.29 || v > 0.31 {
			t.Errorf("expected default temperature 0.3, got %v (present %v)", v, ok)
		}
	})

	t.Run("Zero", func(t *testing.T) {
		zero := float32(0)
		v, ok := sent(t, Options{Temperature: &zero})
		if !ok || v > 1e-6 {
			t.Errorf("zero temperature must reach the API, got %v (present %v)", v, ok)
		}
	})
}

func TestAnalyzeRetries(t *testing.T) {
	t.Run("RateLimitThenSuccess", func(t *testing.T) {
		s, fake := newTestScorer(t,
			fakeReply{status: http.StatusTooManyRequests},
			fakeReply{content: validReply, usage: 10},
		)
		if _, err := s.Analyze(context.Background(), testCrawl(), Options{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := fake.count(); n != 2 {
			t.Errorf("expected 2 attempts, got %d", n)
		}
	})

	t.Run("ServerErrorExhausts", func(t *testing.T) {
		s, fake := newTestScorer(t, fakeReply{status: http.StatusInternalServerError})
		_, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if CodeOf(err) != CodeServerError {
			t.Fatalf("expected SERVER_ERROR, got %v", err)
		}
		if n := fake.count(); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("RateLimitExhausts", func(t *testing.T) {
		s, _ := newTestScorer(t, fakeReply{status: http.StatusTooManyRequests})
		_, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if CodeOf(err) != CodeRateLimit {
			t.Fatalf("expected RATE_LIMIT, got %v", err)
		}
	})

	t.Run("ClientErrorNotRetried", func(t *testing.T) {
		s, fake := newTestScorer(t, fakeReply{status: http.StatusBadRequest})
		_, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if CodeOf(err) != CodeGeneric {
			t.Fatalf("expected GENERIC, got %v", err)
		}
		if n := fake.count(); n != 1 {
			t.Errorf("4xx should not be retried, got %d attempts", n)
		}
	})
}

func TestAnalyzeMalformed(t *testing.T) {
	t.Run("StrictRetryRecovers", func(t *testing.T) {
		s, fake := newTestScorer(t,
			fakeReply{content: "Här är din analys: inte json", usage: 5},
			fakeReply{content: validReply, usage: 7},
		)
		res, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.TokensUsed != 12 {
			t.Errorf("usage of both calls should be summed, got %d", res.TokensUsed)
		}
		if fake.count() != 2 {
			t.Fatalf("expected a strict retry, got %d requests", fake.count())
		}
		if !strings.Contains(fake.requests[1], "ENBART") {
			t.Error("retry should carry the strict instruction")
		}
	})

	t.Run("StrictRetryFails", func(t *testing.T) {
		s, _ := newTestScorer(t, fakeReply{content: "nope"}, fakeReply{content: "still nope"})
		_, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if CodeOf(err) != CodeMalformedResponse {
			t.Fatalf("expected MALFORMED_RESPONSE, got %v", err)
		}
	})
}

func TestAnalyzeValidation(t *testing.T) {
	t.Run("MissingTokensUsed", func(t *testing.T) {
		var obj map[string]any
		json.Unmarshal([]byte(validReply), &obj)
		delete(obj, "tokensUsed")
		reply, _ := json.Marshal(obj)

		s, _ := newTestScorer(t, fakeReply{content: string(reply)})
		_, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if CodeOf(err) != CodeInvalidResponse {
			t.Fatalf("expected INVALID_RESPONSE, got %v", err)
		}
		le := err.(*Error)
		if le.Message != messages[CodeInvalidResponse] || strings.Contains(le.Message, "tokensUsed") {
			t.Errorf("message should be the fixed Swedish text, got %q", le.Message)
		}
	})

	t.Run("FencedWithAliases", func(t *testing.T) {
		reply := "```json\n" + strings.NewReplacer(`"fix"`, `"solution"`, `"impact": "hög"`, `"priority": "high"`).Replace(validReply) + "\n```"
		s, _ := newTestScorer(t, fakeReply{content: reply})
		res, err := s.Analyze(context.Background(), testCrawl(), Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Improvements[0].Solution != "Skriv om titeln" || res.Improvements[0].Priority != seo.PriorityHigh {
			t.Errorf("aliases not honored: %+v", res.Improvements[0])
		}
		if res.TokensUsed != 30 {
			t.Errorf("without API usage the reported total should be used, got %d", res.TokensUsed)
		}
	})
}

func TestValidateResponse(t *testing.T) {
	base := func() map[string]any {
		var obj map[string]any
		if err := json.Unmarshal([]byte(validReply), &obj); err != nil {
			t.Fatal(err)
		}
		return obj
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"score above range", func(o map[string]any) { o["scores"].(map[string]any)["h1"] = 101.0 }, "scores.h1"},
		{"score not a number", func(o map[string]any) { o["scores"].(map[string]any)["meta"] = "80" }, "scores.meta"},
		{"quick wins not strings", func(o map[string]any) { o["quickWins"] = []any{1.0} }, "quickWins"},
		{"unknown area", func(o map[string]any) {
			o["improvements"].([]any)[0].(map[string]any)["area"] = "Länkar"
		}, "improvements[0].area"},
		{"bad impact", func(o map[string]any) {
			o["improvements"].([]any)[0].(map[string]any)["impact"] = "kritisk"
		}, "improvements[0].impact"},
		{"negative tokens", func(o map[string]any) { o["tokensUsed"].(map[string]any)["total"] = -1.0 }, "tokensUsed.total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := base()
			tt.mutate(obj)
			_, err := validateResponse(obj)
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("got field %q, want %q", ve.Field, tt.field)
			}
		})
	}

	t.Run("MetaSuggestionsOptional", func(t *testing.T) {
		obj := base()
		delete(obj, "metaSuggestions")
		res, err := validateResponse(obj)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.MetaSuggestions != nil {
			t.Error("expected nil meta suggestions")
		}
	})
}

func TestAnalyzeTimeout(t *testing.T) {
	fake := &fakeOpenAI{replies: []fakeReply{{content: validReply, delay: time.Second}}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewScorer(Config{
		APIKey:    "sk-test",
		BaseURL:   srv.URL + "/v1",
		Timeout:   50 * time.Millisecond,
		BaseDelay: time.Millisecond,
	})
	_, err := s.Analyze(context.Background(), testCrawl(), Options{})
	if CodeOf(err) != CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if n := fake.count(); n != 1 {
		t.Errorf("a timed out call should not be retried, got %d", n)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"Svar: {\"a\":{\"b\":2}} klart", `{"a":{"b":2}}`},
		{"ingen json", "ingen json"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
