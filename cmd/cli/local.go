package main

import (
	"fmt"

	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/ledger"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(cfg *config.Config) error {
			fmt.Println("Migrations complete")
			return nil
		})
	},
}

// withDatabase loads configuration, connects and migrates, then runs fn
func withDatabase(fn func(cfg *config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.Log.Level, ""); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	if err := database.Initialize(cfg.Database, cfg.Server.Environment); err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return fn(cfg)
}

// optionalRedis connects when Redis answers and returns nil otherwise
func optionalRedis(cfg *config.Config) *cache.RedisClient {
	client, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		logger.WarnWithFields("Redis unavailable, breaker state is local to this process", err)
		return nil
	}
	return client
}

// newLedger builds the ledger service the way the server does
func newLedger(cfg *config.Config) *ledger.Service {
	var remote ledger.Remote
	if cfg.GitHub.Configured() {
		remote = ledger.NewContentsClient(cfg.GitHub)
	}
	return ledger.NewService(
		ledger.NewStore(database.DB, cfg.Ledger.LocalRetention),
		ledger.NewBreaker(optionalRedis(cfg), cfg.Ledger.MaxAttempts),
		remote,
		cfg.Ledger,
		cfg.GitHub.ActivityPath,
		cfg.Server.Environment,
	)
}
