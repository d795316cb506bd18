package main

import (
	"context"
	"fmt"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Maintain the Elasticsearch indices",
}

var searchReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recreate the indices when outdated and rewrite every document",
	Long: `Writes every active community and every profile to Elasticsearch and removes
deactivated communities. Use --recreate to drop the indices first.

Examples:
  orkut search reindex
  orkut search reindex --recreate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		recreate, _ := cmd.Flags().GetBool("recreate")

		return withDatabase(func(cfg *config.Config) error {
			if cfg.Search.ElasticsearchURL == "" {
				return fmt.Errorf("ELASTICSEARCH_URL is not set")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			client, err := search.NewClient(ctx, cfg.Search)
			if err != nil {
				return err
			}
			if recreate {
				if err := client.DropIndices(ctx); err != nil {
					return err
				}
			}
			if _, err := client.EnsureIndices(ctx); err != nil {
				return err
			}

			start := time.Now()
			written, err := search.Reindex(ctx, client, database.DB)
			if err != nil {
				return fmt.Errorf("reindex stopped after %d documents: %w", written, err)
			}
			fmt.Printf("Indexed %d documents in %s\n", written, time.Since(start).Round(time.Millisecond))
			return nil
		})
	},
}

func init() {
	searchCmd.AddCommand(searchReindexCmd)
	searchReindexCmd.Flags().Bool("recreate", false, "Drop the indices before reindexing")
}
