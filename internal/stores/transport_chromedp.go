package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// ChromedpTransport renders JS-driven storefronts in headless Chrome. One
// browser allocator is shared across the run; each Get opens a fresh tab.
type ChromedpTransport struct {
	cfg         TransportConfig
	headful     bool
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedpTransport starts the browser allocator. headful disables
// headless mode for debugging store selectors.
func NewChromedpTransport(cfg TransportConfig, headful bool) *ChromedpTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 35 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpTransport{
		cfg:         cfg,
		headful:     headful,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Get navigates to url and returns the rendered DOM once the document is
// ready.
func (t *ChromedpTransport) Get(ctx context.Context, url string) (Page, error) {
	taskCtx, taskCancel := chromedp.NewContext(t.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, t.cfg.Timeout)
	defer cancel()

	// Honor the caller's cancellation alongside the navigation timeout.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	var (
		html     string
		finalURL string
	)
	err := chromedp.Run(taskCtx,
		emulation.SetDeviceMetricsOverride(1400, 950, 1, false),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("render %s canceled: %w", url, ctx.Err())
		}
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	if finalURL == "" {
		finalURL = url
	}
	return Page{URL: finalURL, HTML: html}, nil
}

// Close tears down the browser allocator.
func (t *ChromedpTransport) Close() error {
	t.allocCancel()
	return nil
}
