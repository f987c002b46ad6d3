package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/udaysk3/smart-research-assistant/internal/research"
)

var (
	researchUser   string
	researchNoWeb  bool
	researchNoLive bool
	researchJSON   bool
)

var researchCmd = &cobra.Command{
	Use:   "research [question]",
	Short: "Run one research request and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		env, err := initEnv(ctx, "research")
		if err != nil {
			return err
		}
		defer env.Close()

		// Warm the feed cache once so the live data source has content even
		// without the background refresher.
		if !researchNoLive {
			if _, err := env.Cache.RunCycle(ctx); err != nil {
				zap.L().Warn("feed refresh before research failed", zap.Error(err))
			}
		}

		opts := research.Options{
			IncludeWebSearch: !researchNoWeb,
			IncludeLiveData:  !researchNoLive,
		}
		report, err := env.Orchestrator.SubmitResearch(ctx, researchUser, question, opts)
		if err != nil {
			return err
		}

		if researchJSON {
			return json.NewEncoder(os.Stdout).Encode(report)
		}

		fmt.Printf("Report %s\n\n%s\n", report.ID, report.Answer)
		if len(report.Citations) > 0 {
			fmt.Println("\nSources:")
			for _, c := range report.Citations {
				fmt.Printf("  [%d] %s (%s)", c.Index, c.Title, c.SourceLabel)
				if c.Location != "" {
					fmt.Printf(" - %s", c.Location)
				}
				fmt.Println()
			}
		}
		fmt.Printf("\nCredits charged: %d\n", report.CreditCost)
		return nil
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchUser, "user", "", "user id to bill and scope documents to (required)")
	researchCmd.Flags().BoolVar(&researchNoWeb, "no-web", false, "disable the web search source")
	researchCmd.Flags().BoolVar(&researchNoLive, "no-live", false, "disable the live feed source")
	researchCmd.Flags().BoolVar(&researchJSON, "json", false, "print the report as JSON")
	_ = researchCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(researchCmd)
}
