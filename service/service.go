// Package service runs one analysis end to end: crawl, score, persist.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/seo-maskinen/backend/analyzer"
	"github.com/seo-maskinen/backend/breaker"
	"github.com/seo-maskinen/backend/crawler"
	"github.com/seo-maskinen/backend/llm"
	"github.com/seo-maskinen/backend/logging"
	"github.com/seo-maskinen/backend/metrics"
	"github.com/seo-maskinen/backend/seo"
	"github.com/seo-maskinen/backend/stats"
	"github.com/seo-maskinen/backend/store"
)

var tracer = otel.Tracer("github.com/seo-maskinen/backend/service")

type Mode string

const (
	ModeHeuristic Mode = "heuristic"
	ModeAI        Mode = "ai"
)

func (m Mode) Valid() bool {
	return m == ModeHeuristic || m == ModeAI
}

type Crawler interface {
	Crawl(ctx context.Context, rawURL, keyword string, override *crawler.Override) (*seo.CrawlData, error)
}

type Heuristic interface {
	Analyze(data *seo.CrawlData, keyword string) *seo.SeoAnalysisResult
}

type LLM interface {
	Enabled() bool
	Analyze(ctx context.Context, crawl seo.CrawlData, opts llm.Options) (*seo.OpenAIAnalysisResult, error)
}

type Store interface {
	Create(ctx context.Context, a *store.Analysis) error
}

type Archiver interface {
	StoreCrawl(ctx context.Context, userID, analysisID string, data *seo.CrawlData) (string, error)
}

type Recorder interface {
	RecordAnalysis(a stats.Analysis)
}

// Dependencies are the collaborators of an Analyzer. Store, Archive and
// Stats are optional.
type Dependencies struct {
	Crawler   Crawler
	Heuristic Heuristic
	LLM       LLM
	Breakers  *breaker.Registry
	Store     Store
	Archive   Archiver
	Stats     Recorder
}

type Request struct {
	UserID       string
	URL          string
	Keyword      string
	Mode         Mode
	BusinessType string
	Location     string
}

// Scores are the six canonical 0-100 scores stored for every analysis
type Scores struct {
	Overall   int `json:"overall"`
	Title     int `json:"title"`
	H1        int `json:"h1"`
	Meta      int `json:"meta"`
	Content   int `json:"content"`
	Technical int `json:"technical"`
}

type Result struct {
	ID             string                    `json:"id,omitempty"`
	URL            seo.WebsiteURL            `json:"url"`
	Keyword        string                    `json:"keyword"`
	Mode           Mode                      `json:"mode"`
	Scores         Scores                    `json:"scores"`
	Improvements   []seo.Improvement         `json:"improvements"`
	Heuristic      *seo.SeoAnalysisResult    `json:"heuristic"`
	AI             *seo.OpenAIAnalysisResult `json:"analysis,omitempty"`
	CrawlData      *seo.CrawlData            `json:"crawlData"`
	ProcessingTime float64                   `json:"processingTimeSeconds"`
	CreatedAt      *time.Time                `json:"createdAt,omitempty"`
}

type Analyzer struct {
	deps Dependencies
	now  func() time.Time
}

func New(deps Dependencies) *Analyzer {
	if deps.Breakers == nil {
		deps.Breakers = breaker.NewRegistry(breaker.Settings{Ignore: IsCallerError}, nil)
	}
	return &Analyzer{deps: deps, now: time.Now}
}

// IsCallerError reports failures caused by the request rather than by the
// service, which must not trip a circuit breaker
func IsCallerError(err error) bool {
	switch crawler.CodeOf(err) {
	case crawler.CodeInvalidURL, crawler.CodeRobotsBlocked:
		return true
	}
	if llm.CodeOf(err) == llm.CodeNoAPIKey {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// Analyze crawls req.URL, scores it and stores the outcome. Errors are the
// crawler's or scorer's typed errors, or wrap breaker.ErrOpen.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "service.analyze")
	defer span.End()

	if !req.Mode.Valid() {
		req.Mode = ModeHeuristic
	}
	keyword := req.Keyword
	if keyword == "" {
		keyword = seo.DefaultKeyword
	}
	span.SetAttributes(
		attribute.String("analysis.mode", string(req.Mode)),
		attribute.String("analysis.url", req.URL),
	)

	log := logging.FromContext(ctx).With("url", req.URL, "mode", req.Mode)
	start := a.now()
	log.Info("starting website analysis")

	data, err := a.crawl(ctx, req.URL, keyword)
	if err != nil {
		return nil, a.fail(ctx, req, keyword, nil, start, err)
	}
	log.Info("crawler completed", "load_time_ms", data.LoadTime, "errors", len(data.Errors))

	heuristic := a.deps.Heuristic.Analyze(data, keyword)
	metrics.OverallScore.WithLabelValues(string(ModeHeuristic)).Observe(float64(heuristic.OverallScore))

	res := &Result{
		URL:       data.URL,
		Keyword:   keyword,
		Mode:      req.Mode,
		Heuristic: heuristic,
		CrawlData: data,
	}
	res.Scores = heuristicScores(heuristic)
	res.Improvements = heuristicImprovements(heuristic)

	if req.Mode == ModeAI {
		ai, err := a.scoreWithLLM(ctx, data, req, keyword)
		if err != nil {
			return nil, a.fail(ctx, req, keyword, data, start, err)
		}
		res.AI = ai
		res.Scores = Scores{
			Overall:   ai.OverallScore,
			Title:     ai.TitleScore,
			H1:        ai.H1Score,
			Meta:      ai.MetaScore,
			Content:   ai.ContentScore,
			Technical: ai.TechnicalScore,
		}
		res.Improvements = ai.Improvements
		metrics.OverallScore.WithLabelValues(string(ModeAI)).Observe(float64(ai.OverallScore))
		log.Info("ai analysis completed", "tokens", ai.TokensUsed)
	}

	res.ProcessingTime = a.elapsed(start)

	row := a.row(req, keyword, data, res)
	if a.deps.Store != nil {
		if err := a.deps.Store.Create(ctx, row); err != nil {
			// the analysis is still returned
			log.Error("database save failed", "error", err)
		} else {
			res.ID = row.ID
			created := row.CreatedAt
			res.CreatedAt = &created
		}
	}
	a.archive(ctx, req.UserID, row.ID, data)

	tokens := 0
	if res.AI != nil {
		tokens = res.AI.TokensUsed
	}
	a.record(req, false, data.LoadTime, tokens)
	log.Info("analysis completed", "analysis_id", res.ID, "overall_score", res.Scores.Overall,
		"duration_s", res.ProcessingTime)
	return res, nil
}

func (a *Analyzer) crawl(ctx context.Context, rawURL, keyword string) (*seo.CrawlData, error) {
	var data *seo.CrawlData
	start := a.now()
	err := a.deps.Breakers.Execute(breaker.Crawler, func() error {
		var err error
		data, err = a.deps.Crawler.Crawl(ctx, rawURL, keyword, nil)
		return err
	})

	code := "ok"
	switch {
	case breaker.IsOpen(err):
		code = "breaker_open"
	case err != nil:
		code = string(crawler.CodeOf(err))
		if code == "" {
			code = string(crawler.CodeGeneric)
		}
	}
	metrics.CrawlDuration.WithLabelValues(code).Observe(a.now().Sub(start).Seconds())
	return data, err
}

func (a *Analyzer) scoreWithLLM(ctx context.Context, data *seo.CrawlData, req Request, keyword string) (*seo.OpenAIAnalysisResult, error) {
	if a.deps.LLM == nil || !a.deps.LLM.Enabled() {
		metrics.LLMRequests.WithLabelValues(string(llm.CodeNoAPIKey)).Inc()
		return nil, llm.ErrNoAPIKey()
	}

	opts := llm.Options{
		TargetKeyword: keyword,
		BusinessType:  req.BusinessType,
		Location:      req.Location,
		Language:      "sv",
	}

	var ai *seo.OpenAIAnalysisResult
	err := a.deps.Breakers.Execute(breaker.OpenAI, func() error {
		var err error
		ai, err = a.deps.LLM.Analyze(ctx, *data, opts)
		return err
	})

	code := "ok"
	switch {
	case breaker.IsOpen(err):
		code = "breaker_open"
	case err != nil:
		code = string(llm.CodeOf(err))
		if code == "" {
			code = string(llm.CodeGeneric)
		}
	default:
		metrics.LLMTokens.Add(float64(ai.TokensUsed))
	}
	metrics.LLMRequests.WithLabelValues(code).Inc()
	return ai, err
}

// fail records a failed analysis and hands err back unchanged
func (a *Analyzer) fail(ctx context.Context, req Request, keyword string, data *seo.CrawlData, start time.Time, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "analysis failed")

	log := logging.FromContext(ctx).With("url", req.URL, "mode", req.Mode)
	log.Error("analysis failed", "error", err, "duration_s", a.elapsed(start))

	var loadTime int64
	pages := 0
	if data != nil {
		loadTime = data.LoadTime
		pages = len(data.Pages)
	}
	a.record(req, true, loadTime, 0)

	if a.deps.Store == nil || crawler.CodeOf(err) == crawler.CodeInvalidURL {
		return err
	}
	row := &store.Analysis{
		UserID:                req.UserID,
		WebsiteURL:            req.URL,
		TargetKeyword:         keyword,
		Status:                store.StatusError,
		Mode:                  string(req.Mode),
		CrawlData:             data,
		ErrorMessage:          UserMessage(err),
		PagesCrawled:          pages,
		ProcessingTimeSeconds: a.elapsed(start),
	}
	if data != nil {
		row.WebsiteURL = data.URL.String()
	}
	if serr := a.deps.Store.Create(ctx, row); serr != nil {
		log.Error("failed to save error row", "error", serr)
	}
	return err
}

func (a *Analyzer) archive(ctx context.Context, userID, id string, data *seo.CrawlData) {
	if a.deps.Archive == nil || id == "" {
		return
	}
	if _, err := a.deps.Archive.StoreCrawl(ctx, userID, id, data); err != nil {
		logging.FromContext(ctx).Warn("crawl archive upload failed", "analysis_id", id, "error", err)
	}
}

func (a *Analyzer) record(req Request, failed bool, loadTime int64, tokens int) {
	status := "completed"
	if failed {
		status = "error"
	}
	metrics.AnalysesTotal.WithLabelValues(string(req.Mode), status).Inc()

	if a.deps.Stats != nil {
		a.deps.Stats.RecordAnalysis(stats.Analysis{
			URL:        req.URL,
			Mode:       string(req.Mode),
			Failed:     failed,
			LoadTimeMs: loadTime,
			Tokens:     tokens,
		})
	}
}

func (a *Analyzer) elapsed(start time.Time) float64 {
	return math.Round(a.now().Sub(start).Seconds()*100) / 100
}

func (a *Analyzer) row(req Request, keyword string, data *seo.CrawlData, res *Result) *store.Analysis {
	row := &store.Analysis{
		UserID:                req.UserID,
		WebsiteURL:            data.URL.String(),
		TargetKeyword:         keyword,
		Status:                store.StatusCompleted,
		Mode:                  string(req.Mode),
		OverallScore:          res.Scores.Overall,
		TitleScore:            res.Scores.Title,
		H1Score:               res.Scores.H1,
		MetaScore:             res.Scores.Meta,
		ContentScore:          res.Scores.Content,
		TechnicalScore:        res.Scores.Technical,
		Improvements:          res.Improvements,
		ContentIdeas:          []string{},
		CrawlData:             data,
		PagesCrawled:          len(data.Pages),
		ProcessingTimeSeconds: res.ProcessingTime,
	}
	if res.AI != nil {
		row.ContentIdeas = res.AI.ContentIdeas
		row.QuickWins = res.AI.QuickWins
		row.OpenAITokensUsed = res.AI.TokensUsed
	}
	return row
}

// heuristicScores maps the five heuristic metrics onto the stored scores
func heuristicScores(r *seo.SeoAnalysisResult) Scores {
	return Scores{
		Overall:   r.OverallScore,
		Title:     percent(r.Metrics[seo.MetricTitle]),
		H1:        percent(r.Metrics[seo.MetricHeadingStructure]),
		Meta:      percent(r.Metrics[seo.MetricMetaDescription]),
		Content:   percent(r.Metrics[seo.MetricKeywordDensity]),
		Technical: percent(r.Metrics[seo.MetricURLStructure]),
	}
}

func percent(m seo.SeoMetric) int {
	if m.MaxScore <= 0 {
		return 0
	}
	return int(math.Round(float64(m.Score) * 100 / float64(m.MaxScore)))
}

func heuristicImprovements(r *seo.SeoAnalysisResult) []seo.Improvement {
	return analyzer.StructuredImprovements(r)
}

// UserMessage is the end-user text for err. Upstream details never leak.
func UserMessage(err error) string {
	var ce *crawler.Error
	var le *llm.Error
	switch {
	case breaker.IsOpen(err):
		return MsgServiceUnavailable
	case errors.As(err, &ce):
		return ce.Message
	case errors.As(err, &le):
		return le.Message
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	default:
		return MsgUnknown
	}
}

const (
	MsgServiceUnavailable = "Tjänsten är tillfälligt överbelastad. Försök igen om en minut."
	MsgTimeout            = "Analysen tog för lång tid att slutföra. Försök med en enklare hemsida eller försök igen senare."
	MsgUnknown            = "Ett oväntat fel uppstod. Försök igen eller kontakta support."
)
