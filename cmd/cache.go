package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pmprecos/comparador/internal/cache"
	"github.com/pmprecos/comparador/internal/clock"
)

// newCacheCmd creates the 'cache' subcommand group for inspecting and
// pruning the on-disk store caches.
func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspects and prunes the per-store result caches",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints entry counts and freshness per store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return forEachStoreCache(func(name string, c *cache.StoreCache) error {
				stats := c.Snapshot()
				fmt.Printf("%-14s total=%-5d found=%-5d not_found=%-5d expired=%d\n",
					name, stats.Total, stats.Found, stats.NotFound, stats.Expired)
				return nil
			})
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var expiredOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drops cached outcomes, everything or just expired entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return forEachStoreCache(func(name string, c *cache.StoreCache) error {
				if expiredOnly {
					dropped := c.ClearExpired()
					fmt.Printf("%s: dropped %d expired entries\n", name, dropped)
				} else {
					c.Clear()
					fmt.Printf("%s: cleared\n", name)
				}
				return c.Save()
			})
		},
	}
	cmd.Flags().BoolVar(&expiredOnly, "expired", false, "drop only entries past their TTL")
	return cmd
}

// forEachStoreCache opens every enabled store's cache in name order and
// applies fn to it.
func forEachStoreCache(fn func(name string, c *cache.StoreCache) error) error {
	clk := clock.NewSystem()
	names := make([]string, 0, len(cfg.Stores))
	for name, storeCfg := range cfg.Stores {
		if storeCfg.Enabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no stores enabled")
	}
	sort.Strings(names)

	for _, name := range names {
		c, err := cache.New(cfg.CacheSettings(), name, clk, logger)
		if err != nil {
			return fmt.Errorf("open cache for %s: %w", name, err)
		}
		if err := fn(name, c); err != nil {
			return err
		}
	}
	return nil
}
