package main

import (
	"context"
	"fmt"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the activity ledger",
	Long: `The activity ledger stores activities locally and mirrors them to a file in a
GitHub repository. After repeated failed writes the mirror stops trying until
the attempt counter is reset.`,
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the attempt counter and local totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			ctx := context.Background()
			svc := newLedger(cfg)
			stats, status, err := svc.Stats(ctx)
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(map[string]interface{}{
					"currentAttempts":  status.Attempts,
					"maxAttempts":      status.MaxAttempts,
					"canTryAgain":      status.CanTryAgain,
					"lastResetTime":    status.LastResetTime,
					"lastAttemptTime":  status.LastAttemptTime,
					"githubConfigured": svc.RemoteConfigured(),
					"totalActivities":  stats.TotalActivities,
					"uniqueUsers":      stats.UniqueUsers,
					"actionCounts":     stats.ActionCounts,
				})
			}

			fmt.Printf("Attempts:          %d/%d (%s)\n", status.Attempts, status.MaxAttempts, status.Remaining())
			fmt.Printf("Last reset:        %s\n", formatTime(status.LastResetTime))
			fmt.Printf("Last attempt:      %s\n", formatTime(status.LastAttemptTime))
			fmt.Printf("GitHub configured: %v\n", svc.RemoteConfigured())
			fmt.Printf("Redis backed:      %v\n", status.RedisBacked)
			fmt.Printf("Activities:        %d from %d users\n", stats.TotalActivities, stats.UniqueUsers)
			for action, n := range stats.ActionCounts {
				fmt.Printf("  %-20s %d\n", action, n)
			}
			return nil
		})
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the attempt counter so remote writes resume",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			at := newLedger(cfg).Reset(context.Background())
			fmt.Printf("Attempt counter reset at %s\n", at.Format(time.RFC3339))
			return nil
		})
	},
}

var ledgerSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror activities that never reached GitHub",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			n, err := newLedger(cfg).Sync(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Mirrored %d activities\n", n)
			return nil
		})
	},
}

var ledgerPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete local activities past their retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			n, err := newLedger(cfg).Prune(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d activities\n", n)
			return nil
		})
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)
	ledgerCmd.AddCommand(ledgerSyncCmd)
	ledgerCmd.AddCommand(ledgerPruneCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
