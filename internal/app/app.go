// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/cache"
	"github.com/pmprecos/comparador/internal/clock"
	"github.com/pmprecos/comparador/internal/config"
	"github.com/pmprecos/comparador/internal/feed"
	"github.com/pmprecos/comparador/internal/governor"
	"github.com/pmprecos/comparador/internal/match"
	"github.com/pmprecos/comparador/internal/report"
	"github.com/pmprecos/comparador/internal/scraper"
	"github.com/pmprecos/comparador/internal/stores"
)

// App wires one scraper per enabled storefront, each behind its own
// cache, governor, and transport.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *scraper.Registry
}

// New builds every enabled store from configuration. It fails fast: a
// store that cannot be constructed aborts startup.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	clk := clock.NewSystem()
	validator := match.NewValidator(cfg.Match)
	registry := scraper.NewRegistry()

	for name, storeCfg := range cfg.Stores {
		if !storeCfg.Enabled {
			logger.Info("store disabled", zap.String("store", name))
			continue
		}

		transportCfg := stores.TransportConfig{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.BrowserTimeout(),
		}
		var transport stores.Transport
		switch storeCfg.Transport {
		case config.TransportStatic:
			transport = stores.NewCollyTransport(transportCfg)
		case config.TransportBrowser:
			transport = stores.NewChromedpTransport(transportCfg, cfg.Browser.Headful)
		default:
			return nil, fmt.Errorf("store %s: unknown transport %q", name, storeCfg.Transport)
		}

		gov := governor.New(cfg.GovernorSettings(), name, clk)
		retry := governor.NewRetryPolicy(cfg.Retry.MaxAttempts,
			time.Duration(cfg.Retry.BackoffInitialMs)*time.Millisecond,
			time.Duration(cfg.Retry.BackoffMaxMs)*time.Millisecond)
		nav := stores.NewNavigator(transport, gov, retry, logger)

		var store scraper.Store
		switch name {
		case "emmoto":
			store = stores.NewEmmoto(storeCfg.BaseURL, nav, validator, logger)
		case "omniaracing":
			store = stores.NewOmnia(storeCfg.BaseURL, nav, validator, logger)
		case "genialmotor":
			store = stores.NewGenialMotor(storeCfg.BaseURL, nav, validator, logger)
		case "jbsmotos":
			store = stores.NewJBSMotos(storeCfg.BaseURL, nav, validator, logger)
		case "wrs":
			store = stores.NewWRS(storeCfg.BaseURL, nav, validator, logger)
		default:
			return nil, fmt.Errorf("no scraper implemented for store %q", name)
		}

		storeCache, err := cache.New(cfg.CacheSettings(), name, clk, logger)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", name, err)
		}
		if err := registry.Register(scraper.New(store, storeCache, logger)); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no stores enabled")
	}
	return &App{cfg: cfg, logger: logger, registry: registry}, nil
}

// Registry exposes the configured scrapers.
func (a *App) Registry() *scraper.Registry {
	return a.registry
}

// Close persists every cache and releases every transport.
func (a *App) Close() error {
	return a.registry.Close()
}

// RunOptions narrow one comparison run.
type RunOptions struct {
	// Stores limits the run to these store names; empty means all.
	Stores []string
	// MaxProducts stops after this many feed products; 0 means all.
	MaxProducts int
	// UseCache controls whether cached outcomes short-circuit searches.
	UseCache bool
	// Refresh drops expired cache entries before the run starts.
	Refresh bool
}

// Run executes one full comparison: load the feed, search every product
// in every selected store, and write the workbook. Returns the report
// path.
func (a *App) Run(ctx context.Context, opts RunOptions) (string, error) {
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))
	started := time.Now()

	scrapers, err := a.selectScrapers(opts.Stores)
	if err != nil {
		return "", err
	}

	if opts.Refresh {
		for _, s := range scrapers {
			dropped := s.Cache().ClearExpired()
			logger.Info("expired cache entries dropped",
				zap.String("store", s.Name()), zap.Int("dropped", dropped))
		}
	}

	products, err := feed.Load(a.cfg.Feed.Path, logger)
	if err != nil {
		return "", fmt.Errorf("load feed: %w", err)
	}
	if opts.MaxProducts > 0 && len(products) > opts.MaxProducts {
		products = products[:opts.MaxProducts]
	}
	logger.Info("run starting",
		zap.Int("products", len(products)),
		zap.Int("stores", len(scrapers)))

	storeNames := make([]string, 0, len(scrapers))
	for _, s := range scrapers {
		storeNames = append(storeNames, s.Name())
	}
	builder, err := report.NewBuilder(storeNames)
	if err != nil {
		return "", fmt.Errorf("prepare report: %w", err)
	}

	for i, product := range products {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		results := make(map[string]*scraper.SearchResult, len(scrapers))
		for _, s := range scrapers {
			results[s.Name()] = s.SearchWithCache(ctx,
				product.RefNorm, product.RefParts, product.RefRaw, opts.UseCache)
		}
		if err := builder.AddProduct(product, results); err != nil {
			return "", fmt.Errorf("report row %d: %w", i+1, err)
		}
		logger.Debug("product compared",
			zap.String("id", product.ID),
			zap.String("ref", product.RefNorm),
			zap.Int("done", i+1),
			zap.Int("total", len(products)))
	}

	summaries := make([]report.StoreSummary, 0, len(scrapers))
	for _, s := range scrapers {
		if err := s.Cache().Save(); err != nil {
			logger.Warn("cache save failed", zap.String("store", s.Name()), zap.Error(err))
		}
		stats := s.Stats()
		summaries = append(summaries, report.StoreSummary{
			Store:       s.Name(),
			Searches:    stats.TotalSearches,
			CacheHits:   stats.CacheHits,
			Found:       stats.Found,
			NotFound:    stats.NotFound,
			Errors:      stats.Errors,
			HitRate:     stats.HitRate(),
			SuccessRate: stats.SuccessRate(),
		})
		logger.Info("store finished",
			zap.String("store", s.Name()),
			zap.Int("searches", stats.TotalSearches),
			zap.Int("cache_hits", stats.CacheHits),
			zap.Int("found", stats.Found),
			zap.Int("not_found", stats.NotFound),
			zap.Int("errors", stats.Errors),
			zap.Float64("hit_rate", stats.HitRate()),
			zap.Float64("success_rate", stats.SuccessRate()))
	}

	if err := builder.AddSummary(summaries); err != nil {
		return "", fmt.Errorf("report summary: %w", err)
	}

	path := filepath.Join(a.cfg.Report.OutputDir,
		fmt.Sprintf("comparador_%s_%s.xlsx", started.Format("20060102_150405"), runID[:8]))
	if err := builder.Save(path); err != nil {
		return "", err
	}
	logger.Info("run finished",
		zap.String("report", path),
		zap.Duration("elapsed", time.Since(started)))
	return path, nil
}

func (a *App) selectScrapers(names []string) ([]*scraper.Scraper, error) {
	if len(names) == 0 {
		return a.registry.All(), nil
	}
	selected := make([]*scraper.Scraper, 0, len(names))
	for _, name := range names {
		s, ok := a.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown store %q (have %v)", name, a.registry.Names())
		}
		selected = append(selected, s)
	}
	return selected, nil
}
