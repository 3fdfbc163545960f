package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxStaticBodyBytes = 5 * 1024 * 1024

// StaticBrowser fetches the raw HTML over plain HTTP and reads it with
// goquery. Scripts are not executed, so it only sees server-rendered content.
type StaticBrowser struct {
	client *http.Client
}

func NewStaticBrowser(client *http.Client) *StaticBrowser {
	if client == nil {
		client = http.DefaultClient
	}
	return &StaticBrowser{client: client}
}

type staticPage struct {
	client    *http.Client
	userAgent string
	base      *url.URL
	doc       *goquery.Document
}

func (b *StaticBrowser) Launch(ctx context.Context, opts Options) (Page, error) {
	return &staticPage{client: b.client, userAgent: opts.UserAgent}, nil
}

// Navigate ignores wait: the document is complete once the body is read.
func (p *staticPage) Navigate(ctx context.Context, rawURL string, wait WaitUntil) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxStaticBodyBytes))
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	p.base = resp.Request.URL
	p.doc = doc
	return nil
}

func (p *staticPage) Extract(ctx context.Context) (*Snapshot, error) {
	if p.doc == nil {
		return nil, errors.New("no document loaded")
	}
	doc := p.doc

	snap := &Snapshot{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	snap.Description, _ = doc.Find("meta[name='description']").First().Attr("content")
	snap.Viewport, _ = doc.Find("meta[name='viewport']").First().Attr("content")
	snap.H1 = headingTexts(doc, "h1")
	snap.H2 = headingTexts(doc, "h2")
	snap.H3 = headingTexts(doc, "h3")

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" {
			return
		}
		snap.Links = append(snap.Links, p.base.ResolveReference(ref).String())
	})

	images := doc.Find("img")
	snap.Images = images.Length()
	images.Each(func(_ int, s *goquery.Selection) {
		if alt, _ := s.Attr("alt"); strings.TrimSpace(alt) != "" {
			snap.ImagesAlt++
		}
	})

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	snap.BodyText = body.Text()

	return snap, nil
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

func headingTexts(doc *goquery.Document, tag string) []string {
	var out []string
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}
