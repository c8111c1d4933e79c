package main

import (
	"fmt"

	"github.com/obentoo/tapcheck/internal/common/output"
	"github.com/obentoo/tapcheck/internal/livecheck"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the resolution cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cached upstream versions",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached version",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cached versions",
	Args:  cobra.NoArgs,
	RunE:  runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache opens the cache with the configured TTL.
func openCache() (*livecheck.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	ttl, err := cfg.GetCacheTTL()
	if err != nil {
		return nil, err
	}
	return livecheck.OpenCache(cacheDir(), livecheck.WithTTL(ttl))
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	entries := cache.List()
	if len(entries) == 0 {
		output.Fprintf(out, output.Dim, "Cache is empty (%s)\n", cache.Path())
		return nil
	}

	for _, e := range entries {
		state := output.Sprintf(output.UpToDate, "fresh")
		if e.Expired {
			state = output.Sprintf(output.Dim, "expired")
		}
		output.Fprintf(out, output.Package, "  %s", e.Name)
		fmt.Fprintf(out, " %s  %s  [%s]\n", e.Version, e.CachedAt.Format("2006-01-02 15:04:05"), state)
	}
	fmt.Fprintln(out)
	output.Fprintf(out, output.Info, "Total: %d cached version(s) in %s\n", len(entries), cache.Path())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	n := cache.Len()
	if err := cache.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	output.Fprintf(cmd.OutOrStdout(), output.Success, "✓ Removed %d cached version(s)\n", n)
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	n, err := cache.Prune()
	if err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}
	output.Fprintf(cmd.OutOrStdout(), output.Success, "✓ Removed %d expired version(s)\n", n)
	return nil
}
