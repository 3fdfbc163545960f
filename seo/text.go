package seo

import (
	"strings"
	"unicode/utf8"
)

// Text caps shared by the crawler and the LLM prompt builder
const (
	MaxTitleChars   = 300
	MaxMetaChars    = 500
	MaxContentChars = 10000
	DefaultKeyword  = "SEO"
)

// NormalizeText collapses runs of whitespace to single spaces, trims the
// result and cuts it to at most limit runes. limit <= 0 disables the cap.
func NormalizeText(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// Normalize returns a copy of d with every text field normalized and capped
func (d CrawlData) Normalize(maxContent int) CrawlData {
	if maxContent <= 0 {
		maxContent = MaxContentChars
	}
	out := d
	out.Title = NormalizeText(d.Title, MaxTitleChars)
	out.H1 = NormalizeText(d.H1, MaxTitleChars)
	out.Meta = NormalizeText(d.Meta, MaxMetaChars)
	out.Content = NormalizeText(d.Content, maxContent)
	out.Keyword = NormalizeText(d.Keyword, 100)
	if out.Keyword == "" {
		out.Keyword = DefaultKeyword
	}
	return out
}
