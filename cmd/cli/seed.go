package main

import (
	"context"
	"fmt"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with development or test data",
	Long: `Seed the database with fake profiles, communities, friendships, posts and
messages. Every seeded profile logs in with the password "` + seed.DefaultPassword + `".

Examples:
  orkut seed
  orkut seed --profiles 50 --communities 20
  orkut seed --test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		test, _ := cmd.Flags().GetBool("test")
		opts := seed.Options{}
		opts.Profiles, _ = cmd.Flags().GetInt("profiles")
		opts.Communities, _ = cmd.Flags().GetInt("communities")
		opts.Friendships, _ = cmd.Flags().GetInt("friendships")
		opts.Posts, _ = cmd.Flags().GetInt("posts")
		opts.Messages, _ = cmd.Flags().GetInt("messages")

		return withDatabase(func(cfg *config.Config) error {
			seeder := seed.NewSeeder(database.DB)
			if test {
				if err := seeder.SeedTest(context.Background()); err != nil {
					return err
				}
				fmt.Println("Test data seeded")
				return nil
			}

			result, err := seeder.SeedDev(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d profiles, %d communities, %d friendships, %d posts, %d messages\n",
				result.Profiles, result.Communities, result.Friendships, result.Posts, result.Messages)
			return nil
		})
	},
}

var seedCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every seeded row (use with caution)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to clean a production database")
			}
			if err := seed.NewSeeder(database.DB).Clean(context.Background()); err != nil {
				return err
			}
			fmt.Println("Seed data removed")
			return nil
		})
	},
}

func init() {
	seedCmd.AddCommand(seedCleanCmd)

	seedCmd.Flags().Int("profiles", 20, "Number of profiles")
	seedCmd.Flags().Int("communities", 15, "Number of communities beyond the built-in catalogue")
	seedCmd.Flags().Int("friendships", 40, "Number of friendships")
	seedCmd.Flags().Int("posts", 60, "Number of posts")
	seedCmd.Flags().Int("messages", 80, "Number of direct messages")
	seedCmd.Flags().Bool("test", false, "Seed the small fixed data set used by integration tests")
}
