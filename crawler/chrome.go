package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// networkIdleSettle is how long the fallback navigation waits after the load
// event for late XHR/fetch traffic.
const networkIdleSettle = 500 * time.Millisecond

const extractScript = `(() => {
	const text = (el) => (el.textContent || '').trim();
	const all = (sel) => Array.from(document.querySelectorAll(sel));
	const meta = (name) => {
		const el = document.querySelector('meta[name="' + name + '"]');
		return el ? (el.getAttribute('content') || '') : '';
	};
	return {
		title: document.title || '',
		description: meta('description'),
		h1s: all('h1').map(text).filter(Boolean),
		h2s: all('h2').map(text).filter(Boolean),
		h3s: all('h3').map(text).filter(Boolean),
		bodyText: document.body ? (document.body.innerText || '') : '',
		links: all('a[href]').map(a => a.href).filter(Boolean),
		viewport: meta('viewport'),
		images: all('img').length,
		imagesWithAlt: all('img').filter(img => (img.getAttribute('alt') || '').trim()).length,
	};
})()`

// ChromeBrowser drives a headless Chrome through the DevTools protocol. Every
// Launch starts a fresh browser process.
type ChromeBrowser struct {
	ExecPath string
}

func NewChromeBrowser(execPath string) *ChromeBrowser {
	return &ChromeBrowser{ExecPath: execPath}
}

type chromePage struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Launch starts Chrome and opens a tab with interception and dialog handling
// in place. The tab lives until Close or until ctx is done.
func (b *ChromeBrowser) Launch(ctx context.Context, opts Options) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height)),
		chromedp.UserAgent(opts.UserAgent),
	)
	if b.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	p := &chromePage{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go p.interceptRequest(e)
		case *page.EventJavascriptDialogOpening:
			go chromedp.Run(tabCtx, page.HandleJavaScriptDialog(false))
		}
	})

	// The first Run starts the browser process.
	err := chromedp.Run(tabCtx,
		fetch.Enable(),
		chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return p, nil
}

func (p *chromePage) interceptRequest(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	ctx := cdp.WithExecutor(p.ctx, c.Target)

	switch e.ResourceType {
	case network.ResourceTypeImage, network.ResourceTypeFont,
		network.ResourceTypeStylesheet, network.ResourceTypeMedia:
		_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	default:
		_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, wait WaitUntil) error {
	stop := context.AfterFunc(ctx, p.cancelTab)
	defer stop()

	if wait == WaitNetworkIdle {
		return chromedp.Run(p.ctx,
			chromedp.Navigate(url),
			chromedp.Sleep(networkIdleSettle),
		)
	}

	return chromedp.Run(p.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("page load error %s", errorText)
			}
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Extract(ctx context.Context) (*Snapshot, error) {
	stop := context.AfterFunc(ctx, p.cancelTab)
	defer stop()

	var snap Snapshot
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(extractScript, &snap)); err != nil {
		return nil, fmt.Errorf("failed to evaluate page: %w", err)
	}
	return &snap, nil
}

func (p *chromePage) Close() error {
	p.cancelTab()
	p.cancelAlloc()
	return nil
}
