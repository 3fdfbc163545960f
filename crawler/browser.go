package crawler

import "context"

// WaitUntil selects when a navigation counts as finished
type WaitUntil int

const (
	// WaitDOMContentLoaded returns once the document is parsed
	WaitDOMContentLoaded WaitUntil = iota
	// WaitNetworkIdle waits for the load event and a short quiet period
	WaitNetworkIdle
)

func (w WaitUntil) String() string {
	if w == WaitNetworkIdle {
		return "networkidle"
	}
	return "domcontentloaded"
}

// Snapshot is the raw page state read out of a rendered document
type Snapshot struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	H1          []string `json:"h1s"`
	H2          []string `json:"h2s"`
	H3          []string `json:"h3s"`
	BodyText    string   `json:"bodyText"`
	Links       []string `json:"links"`
	Viewport    string   `json:"viewport"`
	Images      int      `json:"images"`
	ImagesAlt   int      `json:"imagesWithAlt"`
}

// Browser starts one isolated browsing session per crawl
type Browser interface {
	Launch(ctx context.Context, opts Options) (Page, error)
}

// Page is a single tab inside a launched session. Close tears down the whole
// session and must be safe to call once after any outcome.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitUntil) error
	Extract(ctx context.Context) (*Snapshot, error)
	Close() error
}
