package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	creditsUser   string
	creditsAmount int
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and manage user credit balances",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a user's available credits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "credits")
		if err != nil {
			return err
		}
		defer env.Close()

		balance, err := env.Ledger.Balance(ctx, creditsUser)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d credits\n", creditsUser, balance)
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add purchased credits to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "credits")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Ledger.Purchase(ctx, creditsUser, creditsAmount); err != nil {
			return err
		}
		balance, err := env.Ledger.Balance(ctx, creditsUser)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d credits\n", creditsUser, balance)
		return nil
	},
}

var creditsUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show a user's spend summary and recent ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "credits")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Ledger.UsageStats(ctx, creditsUser)
		if err != nil {
			return err
		}
		fmt.Printf("user: %s\navailable: %d\nspent: %d\nreports: %d\n",
			stats.UserID, stats.Available, stats.CreditsSpent, stats.ReportsGenerated)
		if len(stats.RecentEntries) > 0 {
			fmt.Println("\nrecent entries:")
			for _, e := range stats.RecentEntries {
				fmt.Printf("  %s  %-12s %+d  balance=%d\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), e.Reason, e.Delta, e.BalanceAfter)
			}
		}
		return nil
	},
}

var creditsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify the cached balance against the ledger sum",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "credits")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Ledger.Reconcile(ctx, creditsUser)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ledger consistent, balance %d\n", creditsUser, sum)
		return nil
	},
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsUser, "user", "", "user id (required)")
	_ = creditsCmd.MarkPersistentFlagRequired("user")
	creditsAddCmd.Flags().IntVar(&creditsAmount, "amount", 0, "credits to add (required)")
	_ = creditsAddCmd.MarkFlagRequired("amount")

	creditsCmd.AddCommand(creditsBalanceCmd, creditsAddCmd, creditsUsageCmd, creditsReconcileCmd)
	rootCmd.AddCommand(creditsCmd)
}
