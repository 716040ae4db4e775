package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmprecos/comparador/internal/app"
)

type compareFlags struct {
	stores      []string
	maxProducts int
	noCache     bool
	refresh     bool
	headful     bool
	schedule    string
	metricsAddr string
}

// newCompareCmd creates the 'compare' subcommand, the main entry point
// for a comparison run.
func newCompareCmd() *cobra.Command {
	flags := &compareFlags{}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Runs a full feed-versus-stores price comparison",
		Long: `Loads the product feed, searches every product in each configured
storefront, and writes a timestamped Excel workbook with prices side by
side. With --schedule the comparison repeats on a cron expression and a
Prometheus endpoint is exposed while the scheduler runs.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.stores, "stores", nil, "limit the run to these stores (default: all enabled)")
	cmd.Flags().IntVar(&flags.maxProducts, "max", 0, "stop after this many feed products (0 = all)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "ignore cached outcomes and search every product live")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "drop expired cache entries before the run")
	cmd.Flags().BoolVar(&flags.headful, "headful", false, "run browser transports with a visible window")
	cmd.Flags().StringVar(&flags.schedule, "schedule", "", "cron expression to repeat the run (empty = run once)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", ":9290", "listen address for /metrics in schedule mode")

	return cmd
}

func runCompare(ctx context.Context, flags *compareFlags) error {
	if flags.headful {
		cfg.Browser.Headful = true
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize stores: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	opts := app.RunOptions{
		Stores:      flags.stores,
		MaxProducts: flags.maxProducts,
		UseCache:    !flags.noCache,
		Refresh:     flags.refresh,
	}

	if flags.schedule == "" {
		report, err := a.Run(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Println(report)
		return nil
	}
	return runScheduled(ctx, a, opts, flags)
}

// runScheduled repeats the comparison on a cron expression until the
// context is cancelled. Overlapping runs are skipped, not queued.
func runScheduled(ctx context.Context, a *app.App, opts app.RunOptions, flags *compareFlags) error {
	metrics := &http.Server{Addr: flags.metricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("metrics endpoint up", zap.String("addr", flags.metricsAddr))
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := scheduler.AddFunc(flags.schedule, func() {
		if _, err := a.Run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", flags.schedule, err)
	}

	logger.Info("scheduler starting", zap.String("schedule", flags.schedule))
	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler stop timed out")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", zap.Error(err))
	}
	return nil
}
