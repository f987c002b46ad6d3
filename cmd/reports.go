package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/udaysk3/smart-research-assistant/internal/store"
)

var (
	reportsUser  string
	reportsLimit int
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse generated research reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "reports")
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Store.ListReports(ctx, store.ReportFilter{
			UserID: reportsUser,
			Limit:  reportsLimit,
		})
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Printf("%s  %s  %-10s %s\n",
				r.CreatedAt.Format("2006-01-02 15:04"), r.ID, r.UserID, r.Question)
		}
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [report-id]",
	Short: "Print one report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "reports")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Store.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	reportsListCmd.Flags().StringVar(&reportsUser, "user", "", "filter by user id")
	reportsListCmd.Flags().IntVar(&reportsLimit, "limit", 20, "maximum reports to list")

	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd)
	rootCmd.AddCommand(reportsCmd)
}
