// Package crawler fetches a single page in a headless browser and extracts
// the signals the scorers work on.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/seo-maskinen/backend/seo"
)

var tracer = otel.Tracer("github.com/seo-maskinen/backend/crawler")

// Crawler runs crawls through a Browser. At most maxConcurrent crawls hold a
// browser at the same time; further callers wait for a slot.
type Crawler struct {
	browser  Browser
	client   *http.Client
	defaults Options
	slots    *semaphore.Weighted
	logger   *slog.Logger
}

// New creates a crawler. client is used for robots.txt; nil means
// http.DefaultClient.
func New(browser Browser, client *http.Client, defaults Options, maxConcurrent int64, logger *slog.Logger) *Crawler {
	if client == nil {
		client = http.DefaultClient
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		browser:  browser,
		client:   client,
		defaults: defaults,
		slots:    semaphore.NewWeighted(maxConcurrent),
		logger:   logger,
	}
}

// NormalizeURL turns user input into an absolute http(s) URL. A bare host
// gets an https:// prefix.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

type renderResult struct {
	data *seo.CrawlData
	err  error
}

// Crawl fetches rawURL and returns its normalized signals. Errors are always
// *Error.
func (c *Crawler) Crawl(ctx context.Context, rawURL, keyword string, override *Override) (*seo.CrawlData, error) {
	opts := c.defaults.apply(override)

	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, invalidURLError(err)
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = seo.DefaultKeyword
	}

	ctx, span := tracer.Start(ctx, "crawler.crawl")
	defer span.End()
	span.SetAttributes(attribute.String("crawl.url", target.String()))

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := c.slots.Acquire(runCtx, 1); err != nil {
		return nil, c.contextError(ctx, runCtx, target)
	}
	defer c.slots.Release(1)

	data := &seo.CrawlData{
		URL:     seo.WebsiteURL(target.String()),
		Keyword: keyword,
		Pages:   []seo.PageData{},
		Errors:  []string{},
	}

	if opts.RespectRobots {
		blocked, err := c.checkRobots(runCtx, target, opts)
		if err != nil {
			c.logger.Warn("robots.txt fetch failed, continuing", "url", target.String(), "error", err)
			data.Errors = append(data.Errors, err.Error())
		}
		if blocked {
			span.SetStatus(codes.Error, string(CodeRobotsBlocked))
			return nil, robotsBlockedError(target.Host)
		}
	}

	done := make(chan renderResult, 1)
	go func() {
		d, err := c.render(runCtx, target, opts, data)
		done <- renderResult{data: d, err: err}
	}()

	select {
	case <-runCtx.Done():
		span.SetStatus(codes.Error, "timeout")
		return nil, c.contextError(ctx, runCtx, target)
	case res := <-done:
		if res.err != nil {
			if runCtx.Err() != nil {
				return nil, c.contextError(ctx, runCtx, target)
			}
			span.RecordError(res.err)
			span.SetStatus(codes.Error, string(CodeOf(res.err)))
			return nil, res.err
		}
		return res.data, nil
	}
}

// contextError reports a cancelled caller as GENERIC and an expired crawl
// budget as TIMEOUT.
func (c *Crawler) contextError(parent, run context.Context, target *url.URL) *Error {
	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		return genericError(parent.Err())
	}
	return timeoutError(target.Host, run.Err())
}

func (c *Crawler) render(ctx context.Context, target *url.URL, opts Options, data *seo.CrawlData) (*seo.CrawlData, error) {
	start := time.Now()

	page, err := c.browser.Launch(ctx, opts)
	if err != nil {
		return nil, genericError(err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.logger.Warn("failed to close browser", "error", err)
		}
	}()

	if err := page.Navigate(ctx, target.String(), WaitDOMContentLoaded); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Info("navigation failed, retrying with network idle wait",
			"url", target.String(), "wait", WaitDOMContentLoaded.String(), "error", err)
		data.Errors = append(data.Errors, fmt.Sprintf("%s: %v", WaitDOMContentLoaded, err))

		if err := page.Navigate(ctx, target.String(), WaitNetworkIdle); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, classifyNavigation(err, target.String(), target.Host)
		}
	}
	loadTime := time.Since(start).Milliseconds()

	snap, err := page.Extract(ctx)
	if err != nil {
		return nil, genericError(err)
	}

	return buildCrawlData(data, snap, opts, loadTime), nil
}

func buildCrawlData(data *seo.CrawlData, snap *Snapshot, opts Options, loadTime int64) *seo.CrawlData {
	data.Title = seo.NormalizeText(snap.Title, seo.MaxTitleChars)
	data.Meta = seo.NormalizeText(snap.Description, seo.MaxMetaChars)
	data.Content = seo.NormalizeText(snap.BodyText, opts.MaxContentChars)
	data.Headings = seo.Headings{
		H1: normalizeAll(snap.H1),
		H2: normalizeAll(snap.H2),
		H3: normalizeAll(snap.H3),
	}
	if len(data.Headings.H1) > 0 {
		data.H1 = data.Headings.H1[0]
	}
	data.Viewport = seo.NormalizeText(snap.Viewport, 200)
	data.MobileFriendly = strings.Contains(strings.ToLower(data.Viewport), "width=device-width")
	data.LoadTime = loadTime
	data.Images = seo.ImageStats{Total: snap.Images, WithAlt: snap.ImagesAlt}

	links := snap.Links
	if opts.MaxLinks >= 0 && len(links) > opts.MaxLinks {
		links = links[:opts.MaxLinks]
	}
	data.Links = append([]string{}, links...)

	sample := strings.TrimSpace(data.Title + " " + data.Meta + " " + data.Content)
	if sample != "" {
		info := whatlanggo.Detect(sample)
		data.Language = info.Lang.Iso6393()
	}

	data.Pages = append(data.Pages, seo.PageData{
		URL:     data.URL,
		Title:   data.Title,
		H1:      data.H1,
		Content: data.Content,
	})

	return data
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := seo.NormalizeText(s, seo.MaxTitleChars); n != "" {
			out = append(out, n)
		}
	}
	return out
}
