package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// DSN builds the connection string, preferring an explicit URL
func DSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	if cfg.Driver == "sqlite" {
		return cfg.Name
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// Initialize opens the connection described by cfg and configures the pool
func Initialize(cfg config.DatabaseConfig, environment string) error {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if environment == "development" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(DSN(cfg))
	case "", "postgres":
		dialector = postgres.Open(DSN(cfg))
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := Open(dialector, gormLogger)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	logger.Log.Info("Database connected", zap.String("driver", db.Dialector.Name()))
	return nil
}

// Open returns a gorm handle with the service defaults (UTC timestamps)
func Open(dialector gorm.Dialector, gormLogger gormlogger.Interface) (*gorm.DB, error) {
	if gormLogger == nil {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// OpenMemory opens a private in-memory sqlite database, migrated and ready.
// name must be unique per caller to keep databases apart.
func OpenMemory(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	db, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)), nil)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection keeps transactions from
	// failing with "table is locked"
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := MigrateDB(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs auto-migration for all models on the global connection
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := MigrateDB(DB); err != nil {
		return err
	}
	logger.Log.Info("Database migrations completed")
	return nil
}

// MigrateDB migrates the schema on db
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if db.Dialector.Name() == "postgres" {
		createIndexes(db)
	}
	return nil
}

// createIndexes adds Postgres specific indexes AutoMigrate cannot express
func createIndexes(db *gorm.DB) {
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_profiles_email_lower ON profiles (LOWER(email))",
		"CREATE INDEX IF NOT EXISTS idx_communities_name_lower ON communities (LOWER(name))",
		"CREATE INDEX IF NOT EXISTS idx_communities_tags ON communities USING GIN (tags)",
		"CREATE INDEX IF NOT EXISTS idx_calls_live ON calls (status, created_at) WHERE status IN ('ringing', 'connected')",
		"CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (profile_id, created_at DESC) WHERE read = false",
		"CREATE INDEX IF NOT EXISTS idx_activity_entries_unsynced ON activity_entries (created_at) WHERE synced = false",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Log.Warn("Could not create index", zap.String("sql", stmt), zap.Error(err))
		}
	}
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
