package seo

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"collapses whitespace", "  hej \n\t  världen  ", 0, "hej världen"},
		{"empty", "   ", 10, ""},
		{"caps runes not bytes", "åäöåäö", 3, "åäö"},
		{"trims after cut", "abc def", 4, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in, tt.limit); got != tt.want {
				t.Errorf("NormalizeText(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCrawlDataNormalize(t *testing.T) {
	d := CrawlData{
		Title:   strings.Repeat("t", 1000),
		Meta:    strings.Repeat("m ", 1000),
		Content: strings.Repeat("innehåll ", 5000),
	}

	n := d.Normalize(0)
	if utf8.RuneCountInString(n.Title) > MaxTitleChars {
		t.Errorf("title has %d runes, cap is %d", utf8.RuneCountInString(n.Title), MaxTitleChars)
	}
	if utf8.RuneCountInString(n.Meta) > MaxMetaChars {
		t.Errorf("meta has %d runes, cap is %d", utf8.RuneCountInString(n.Meta), MaxMetaChars)
	}
	if utf8.RuneCountInString(n.Content) > MaxContentChars {
		t.Errorf("content has %d runes, cap is %d", utf8.RuneCountInString(n.Content), MaxContentChars)
	}
	if n.Keyword != DefaultKeyword {
		t.Errorf("expected default keyword %q, got %q", DefaultKeyword, n.Keyword)
	}
	if d.Title == n.Title {
		t.Error("Normalize must not modify the receiver")
	}
}
