package crawler

import (
	"time"

	"github.com/seo-maskinen/backend/seo"
)

const DefaultUserAgent = "SEO Maskinen Bot/1.0 (+https://seo-maskinen.se)"

// Viewport is the emulated browser window size
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options controls a single crawl
type Options struct {
	UserAgent       string
	Viewport        Viewport
	Timeout         time.Duration
	RespectRobots   bool
	MaxContentChars int
	MaxLinks        int
}

// DefaultOptions returns the options used when a caller overrides nothing
func DefaultOptions() Options {
	return Options{
		UserAgent:       DefaultUserAgent,
		Viewport:        Viewport{Width: 1280, Height: 800},
		Timeout:         90 * time.Second,
		RespectRobots:   true,
		MaxContentChars: seo.MaxContentChars,
		MaxLinks:        100,
	}
}

// Override holds per-call overrides. Nil fields keep the crawler's defaults.
type Override struct {
	UserAgent       *string
	Viewport        *Viewport
	Timeout         *time.Duration
	RespectRobots   *bool
	MaxContentChars *int
	MaxLinks        *int
}

func (o Options) apply(ov *Override) Options {
	if ov == nil {
		return o
	}
	if ov.UserAgent != nil && *ov.UserAgent != "" {
		o.UserAgent = *ov.UserAgent
	}
	if ov.Viewport != nil && ov.Viewport.Width > 0 && ov.Viewport.Height > 0 {
		o.Viewport = *ov.Viewport
	}
	if ov.Timeout != nil && *ov.Timeout > 0 {
		o.Timeout = *ov.Timeout
	}
	if ov.RespectRobots != nil {
		o.RespectRobots = *ov.RespectRobots
	}
	if ov.MaxContentChars != nil && *ov.MaxContentChars > 0 {
		o.MaxContentChars = *ov.MaxContentChars
	}
	if ov.MaxLinks != nil && *ov.MaxLinks >= 0 {
		o.MaxLinks = *ov.MaxLinks
	}
	return o
}
