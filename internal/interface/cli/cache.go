package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the statistics cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached rows",
	Long: `Delete every cached row. The schema is preserved, so the next stats
or sync run rebuilds the cache from scratch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := cache.Open(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer func() { _ = engine.Close() }()

		if err := engine.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <date> [until]",
	Short: "Invalidate cached rows for a date or date range",
	Long: `Drop cached daily rows for the given date (or inclusive range) along
with the file records of every transcript overlapping it. The next
stats run re-derives those buckets from the files.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := args[0]
		to := from
		if len(args) == 2 {
			to = args[1]
		}
		for _, d := range []string{from, to} {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
			}
		}
		if to < from {
			from, to = to, from
		}

		engine, err := cache.Open(cfg.CachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer func() { _ = engine.Close() }()

		if err := engine.InvalidateDateRange(from, to); err != nil {
			return fmt.Errorf("invalidate range: %w", err)
		}
		if from == to {
			fmt.Printf("Invalidated %s.\n", from)
		} else {
			fmt.Printf("Invalidated %s through %s.\n", from, to)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}
