package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	authToken string
	apiURL    string = "http://localhost:8787"
	output    string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "orkut",
	Short: "Orkut CLI - operate the backend and talk to its API",
	Long: `Orkut CLI manages the backend database (migrations, seeds, the activity
ledger, administrators and search indices) and gives command-line access
to the public API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("ORKUT_TOKEN")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to ORKUT_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	// Operator commands, run against the database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(searchCmd)

	// API commands
	rootCmd.AddCommand(communitiesCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(activityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
