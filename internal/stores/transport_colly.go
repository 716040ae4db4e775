package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// TransportConfig controls both transports.
type TransportConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// CollyTransport loads static pages over plain HTTP. Lookups are targeted
// product searches, not a crawl, so robots handling stays with the
// operator's store selection.
type CollyTransport struct {
	cfg  TransportConfig
	base *colly.Collector
}

// NewCollyTransport builds the HTTP transport.
func NewCollyTransport(cfg TransportConfig) *CollyTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyTransport{cfg: cfg, base: c}
}

// Get fetches url and returns the final page after redirects.
func (t *CollyTransport) Get(ctx context.Context, url string) (Page, error) {
	collector := t.base.Clone()

	var (
		page     Page
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		page = Page{URL: r.Request.URL.String(), HTML: string(r.Body)}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("visit %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("visit %s: %w", url, err)
		}
	}

	if fetchErr != nil {
		return Page{}, fmt.Errorf("visit %s: %w", url, fetchErr)
	}
	if page.HTML == "" {
		return Page{}, fmt.Errorf("visit %s: empty response", url)
	}
	return page, nil
}

// Close is a no-op; the collector holds no long-lived resources.
func (t *CollyTransport) Close() error {
	return nil
}
