package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/seo-maskinen/backend/analyzer"
	"github.com/seo-maskinen/backend/breaker"
	"github.com/seo-maskinen/backend/crawler"
	"github.com/seo-maskinen/backend/llm"
	"github.com/seo-maskinen/backend/seo"
	"github.com/seo-maskinen/backend/stats"
	"github.com/seo-maskinen/backend/store"
)

type fakeCrawler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCrawler) Crawl(_ context.Context, rawURL, keyword string, _ *crawler.Override) (*seo.CrawlData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &seo.CrawlData{
		URL:            seo.WebsiteURL(rawURL),
		Keyword:        keyword,
		Title:          "SEO-byrå i Stockholm | Exempel",
		H1:             "SEO för småföretag",
		Meta:           "Vi hjälper företag i Stockholm att synas på Google med SEO som ger fler kunder och mer trafik varje månad.",
		Content:        "SEO handlar om att bli hittad. Vår SEO-tjänst ger resultat.",
		LoadTime:       850,
		MobileFriendly: true,
		Headings:       seo.Headings{H1: []string{"SEO för småföretag"}},
		Pages:          []seo.PageData{{URL: seo.WebsiteURL(rawURL)}},
		Errors:         []string{},
	}, nil
}

type fakeLLM struct {
	enabled bool
	res     *seo.OpenAIAnalysisResult
	err     error
	opts    llm.Options
}

func (f *fakeLLM) Enabled() bool { return f.enabled }

func (f *fakeLLM) Analyze(_ context.Context, _ seo.CrawlData, opts llm.Options) (*seo.OpenAIAnalysisResult, error) {
	f.opts = opts
	return f.res, f.err
}

type fakeStore struct {
	rows []*store.Analysis
	err  error
}

func (f *fakeStore) Create(_ context.Context, a *store.Analysis) error {
	if f.err != nil {
		return f.err
	}
	if a.ID == "" {
		a.ID = "analysis-1"
	}
	f.rows = append(f.rows, a)
	return nil
}

type fakeArchive struct{ ids []string }

func (f *fakeArchive) StoreCrawl(_ context.Context, _, id string, _ *seo.CrawlData) (string, error) {
	f.ids = append(f.ids, id)
	return "crawls/" + id + ".json", nil
}

type fakeRecorder struct{ got []stats.Analysis }

func (f *fakeRecorder) RecordAnalysis(a stats.Analysis) { f.got = append(f.got, a) }

type fixture struct {
	crawler *fakeCrawler
	llm     *fakeLLM
	store   *fakeStore
	archive *fakeArchive
	stats   *fakeRecorder
	svc     *Analyzer
}

func newFixture() *fixture {
	f := &fixture{
		crawler: &fakeCrawler{},
		llm:     &fakeLLM{},
		store:   &fakeStore{},
		archive: &fakeArchive{},
		stats:   &fakeRecorder{},
	}
	f.svc = New(Dependencies{
		Crawler:   f.crawler,
		Heuristic: analyzer.New(),
		LLM:       f.llm,
		Breakers:  breaker.NewRegistry(breaker.Settings{Ignore: IsCallerError}, nil),
		Store:     f.store,
		Archive:   f.archive,
		Stats:     f.stats,
	})
	return f
}

func TestAnalyzeHeuristic(t *testing.T) {
	f := newFixture()
	res, err := f.svc.Analyze(context.Background(), Request{
		UserID:  "user-1",
		URL:     "https://example.se/",
		Keyword: "seo",
		Mode:    ModeHeuristic,
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if res.ID != "analysis-1" || res.CreatedAt == nil {
		t.Errorf("stored id not returned: %+v", res)
	}
	if res.AI != nil {
		t.Error("heuristic mode must not call the model")
	}
	h := res.Heuristic
	if res.Scores.Overall != h.OverallScore ||
		res.Scores.H1 != h.Metrics[seo.MetricHeadingStructure].Score ||
		res.Scores.Content != h.Metrics[seo.MetricKeywordDensity].Score ||
		res.Scores.Technical != h.Metrics[seo.MetricURLStructure].Score {
		t.Errorf("heuristic scores mapped wrong: %+v vs %+v", res.Scores, h.Metrics)
	}

	if len(f.store.rows) != 1 {
		t.Fatalf("expected one stored row, got %d", len(f.store.rows))
	}
	row := f.store.rows[0]
	if row.Status != store.StatusCompleted || row.UserID != "user-1" || row.Mode != "heuristic" || row.PagesCrawled != 1 {
		t.Errorf("unexpected row %+v", row)
	}
	if row.OverallScore != res.Scores.Overall || row.MetaScore != res.Scores.Meta {
		t.Errorf("row scores differ from result: %+v", row)
	}
	if len(f.archive.ids) != 1 || f.archive.ids[0] != "analysis-1" {
		t.Errorf("crawl not archived: %v", f.archive.ids)
	}
	if len(f.stats.got) != 1 || f.stats.got[0].Failed || f.stats.got[0].LoadTimeMs != 850 {
		t.Errorf("unexpected stats %+v", f.stats.got)
	}
}

func TestAnalyzeAI(t *testing.T) {
	f := newFixture()
	f.llm.enabled = true
	f.llm.res = &seo.OpenAIAnalysisResult{
		OverallScore:   72,
		TitleScore:     80,
		H1Score:        70,
		MetaScore:      60,
		ContentScore:   75,
		TechnicalScore: 65,
		Improvements:   []seo.Improvement{{Area: seo.AreaMeta, Score: 60, Issue: "Kort", Solution: "Förläng", Priority: seo.PriorityHigh}},
		ContentIdeas:   []string{"Guide till lokal SEO"},
		QuickWins:      []string{"Lägg till sökordet i titeln"},
		TokensUsed:     1500,
	}

	res, err := f.svc.Analyze(context.Background(), Request{
		UserID:       "user-1",
		URL:          "https://example.se/",
		Mode:         ModeAI,
		BusinessType: "Byrå",
		Location:     "Stockholm",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Scores.Overall != 72 || res.Scores.Technical != 65 || res.Heuristic == nil {
		t.Errorf("model scores should win: %+v", res.Scores)
	}
	if f.llm.opts.TargetKeyword != seo.DefaultKeyword || f.llm.opts.Location != "Stockholm" || f.llm.opts.Language != "sv" {
		t.Errorf("unexpected scorer options %+v", f.llm.opts)
	}

	row := f.store.rows[0]
	if row.OpenAITokensUsed != 1500 || len(row.QuickWins) != 1 || len(row.ContentIdeas) != 1 || len(row.Improvements) != 1 {
		t.Errorf("unexpected row %+v", row)
	}
	if f.stats.got[0].Tokens != 1500 || f.stats.got[0].Mode != "ai" {
		t.Errorf("unexpected stats %+v", f.stats.got)
	}
}

func TestAnalyzeAIWithoutKey(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Analyze(context.Background(), Request{UserID: "u", URL: "https://example.se/", Mode: ModeAI})
	if llm.CodeOf(err) != llm.CodeNoAPIKey {
		t.Fatalf("expected NO_API_KEY, got %v", err)
	}
	if len(f.store.rows) != 1 || f.store.rows[0].Status != store.StatusError || f.store.rows[0].ErrorMessage != UserMessage(err) {
		t.Errorf("expected an error row, got %+v", f.store.rows)
	}
	if !f.stats.got[0].Failed {
		t.Error("failure not recorded")
	}
}

func TestCallerErrorsDoNotTripBreaker(t *testing.T) {
	f := newFixture()
	f.crawler.err = &crawler.Error{Code: crawler.CodeRobotsBlocked, Message: "blockerad"}

	for i := 0; i < 5; i++ {
		_, err := f.svc.Analyze(context.Background(), Request{UserID: "u", URL: "https://example.se/admin"})
		if crawler.CodeOf(err) != crawler.CodeRobotsBlocked {
			t.Fatalf("attempt %d: expected ROBOTS_BLOCKED, got %v", i, err)
		}
	}
	if f.crawler.calls != 5 {
		t.Errorf("crawler should run every time, ran %d", f.crawler.calls)
	}
	if f.store.rows[0].ErrorMessage != "blockerad" {
		t.Errorf("unexpected error message %q", f.store.rows[0].ErrorMessage)
	}
}

func TestBreakerOpensOnCrawlFailures(t *testing.T) {
	f := newFixture()
	f.crawler.err = &crawler.Error{Code: crawler.CodeNavigation, Message: "kunde inte laddas"}

	for i := 0; i < breaker.DefaultFailureThreshold; i++ {
		f.svc.Analyze(context.Background(), Request{UserID: "u", URL: "https://example.se/"})
	}
	_, err := f.svc.Analyze(context.Background(), Request{UserID: "u", URL: "https://example.se/"})
	if !breaker.IsOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if f.crawler.calls != breaker.DefaultFailureThreshold {
		t.Errorf("crawler called while open: %d", f.crawler.calls)
	}
	if UserMessage(err) != MsgServiceUnavailable {
		t.Errorf("unexpected message %q", UserMessage(err))
	}
}

func TestStoreFailureStillReturnsResult(t *testing.T) {
	f := newFixture()
	f.store.err = errors.New("database is locked")

	res, err := f.svc.Analyze(context.Background(), Request{UserID: "u", URL: "https://example.se/"})
	if err != nil {
		t.Fatalf("a failed save must not fail the analysis: %v", err)
	}
	if res.ID != "" || res.CreatedAt != nil {
		t.Errorf("unsaved result should carry no id: %+v", res)
	}
	if len(f.archive.ids) != 0 {
		t.Error("nothing to archive without an id")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&crawler.Error{Code: crawler.CodeTimeout, Message: "tog för lång tid"}, "tog för lång tid"},
		{llm.ErrNoAPIKey(), llm.ErrNoAPIKey().Message},
		{context.DeadlineExceeded, MsgTimeout},
		{errors.New("secret upstream detail"), MsgUnknown},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
