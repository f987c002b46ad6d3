package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/udaysk3/smart-research-assistant/internal/feedcache"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Manage the live feed cache",
}

var feedsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one feed refresh cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "feeds")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Cache.RunCycle(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("evicted=%d fetched=%d inserted=%d duplicates=%d failed_feeds=%d\n",
			stats.Evicted, stats.Fetched, stats.Inserted, stats.Duplicates, stats.FailedFeeds)
		return nil
	},
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		feeds, err := feedcache.LoadFeeds(cfg.Feeds.ConfigPath)
		if err != nil {
			return err
		}
		for _, f := range feeds {
			fmt.Printf("%-20s %s\n", f.Name, f.URL)
		}
		return nil
	},
}

var feedsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache size",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "feeds")
		if err != nil {
			return err
		}
		defer env.Close()

		count, err := env.Cache.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cached items: %d (retention %s)\n", count, cfg.Feeds.Retention())
		return nil
	},
}

func init() {
	feedsCmd.AddCommand(feedsRefreshCmd, feedsListCmd, feedsStatusCmd)
	rootCmd.AddCommand(feedsCmd)
}
