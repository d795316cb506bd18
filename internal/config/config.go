package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the API server and CLI
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	GitHub    GitHubConfig
	Search    SearchConfig
	Telemetry TelemetryConfig
	Calls     CallsConfig
	Ledger    LedgerConfig
}

type ServerConfig struct {
	Port            string
	Environment     string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	RateLimit       int
	RateWindow      time.Duration
	// RequiredServices lists optional backends that must answer at startup
	RequiredServices []string
}

type LogConfig struct {
	Level string
	File  string
}

type DatabaseConfig struct {
	Driver   string
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	AdminEmails     []string
	AdminTOTPSecret string
	// TrustEmailHeader lets unauthenticated community writes name their
	// actor in X-User-Email or user_email
	TrustEmailHeader bool
}

type GitHubConfig struct {
	Token        string
	Owner        string
	Repo         string
	Branch       string
	ActivityPath string
	APIURL       string
	Timeout      time.Duration
}

// Configured reports whether enough is set to talk to the contents API
func (g GitHubConfig) Configured() bool {
	return g.Token != "" && g.Owner != "" && g.Repo != ""
}

type SearchConfig struct {
	ElasticsearchURL string
	CacheTTL         time.Duration
	ReindexInterval  time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	Endpoint     string
	SamplingRate float64
}

type CallsConfig struct {
	RingTimeout   time.Duration
	SweepInterval time.Duration
	HistoryLimit  int
}

type LedgerConfig struct {
	MaxAttempts     int
	RemoteRetention int
	LocalRetention  int
	LocalMaxAge     time.Duration
	ConflictRetries int
	PruneInterval   time.Duration
}

// env names for every key, so deployments keep the flat variable names
var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.environment":      "ENVIRONMENT",
	"server.cors_origins":     "CORS_ORIGINS",
	"server.rate_limit":       "RATE_LIMIT",
	"server.required":         "REQUIRED_SERVICES",
	"log.level":               "LOG_LEVEL",
	"log.file":                "LOG_FILE",
	"database.driver":         "DATABASE_DRIVER",
	"database.url":            "DATABASE_URL",
	"database.host":           "POSTGRES_HOST",
	"database.port":           "POSTGRES_PORT",
	"database.user":           "POSTGRES_USER",
	"database.password":       "POSTGRES_PASSWORD",
	"database.name":           "POSTGRES_DB",
	"database.sslmode":        "POSTGRES_SSLMODE",
	"redis.host":              "REDIS_HOST",
	"redis.port":              "REDIS_PORT",
	"redis.password":          "REDIS_PASSWORD",
	"auth.jwt_secret":         "JWT_SECRET",
	"auth.admin_emails":       "ADMIN_EMAILS",
	"auth.admin_totp_secret":  "ADMIN_TOTP_SECRET",
	"auth.trust_email_header": "AUTH_TRUST_EMAIL_HEADER",
	"github.token":            "GITHUB_TOKEN",
	"github.owner":            "GITHUB_REPO_OWNER",
	"github.repo":             "GITHUB_REPO_NAME",
	"github.branch":           "GITHUB_BRANCH",
	"github.activity_path":    "GITHUB_ACTIVITY_PATH",
	"github.api_url":          "GITHUB_API_URL",
	"search.elasticsearch":    "ELASTICSEARCH_URL",
	"telemetry.enabled":       "OTEL_ENABLED",
	"telemetry.endpoint":      "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.sampling_rate": "OTEL_SAMPLING_RATE",
	"calls.ring_timeout":      "CALL_RING_TIMEOUT",
	"ledger.max_attempts":     "LEDGER_MAX_ATTEMPTS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8787")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", "http://localhost:3000")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "server.log")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "orkut")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.trust_email_header", false)
	v.SetDefault("github.branch", "main")
	v.SetDefault("github.activity_path", "data/user-activity.json")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.timeout", 15*time.Second)
	v.SetDefault("search.cache_ttl", 2*time.Minute)
	v.SetDefault("search.reindex_interval", 30*time.Minute)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("calls.ring_timeout", 30*time.Second)
	v.SetDefault("calls.sweep_interval", 5*time.Second)
	v.SetDefault("calls.history_limit", 50)
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("ledger.remote_retention", 50)
	v.SetDefault("ledger.local_retention", 100)
	v.SetDefault("ledger.local_max_age", 7*24*time.Hour)
	v.SetDefault("ledger.conflict_retries", 3)
	v.SetDefault("ledger.prune_interval", time.Hour)
}

// Load reads .env files, an optional config.yaml and the environment.
// Missing files are not an error.
func Load(searchPaths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:             v.GetString("server.port"),
			Environment:      v.GetString("server.environment"),
			CORSOrigins:      splitList(v.GetString("server.cors_origins")),
			ShutdownTimeout:  v.GetDuration("server.shutdown_timeout"),
			RateLimit:        v.GetInt("server.rate_limit"),
			RateWindow:       v.GetDuration("server.rate_window"),
			RequiredServices: splitList(strings.ToLower(v.GetString("server.required"))),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("database.driver"),
			URL:      v.GetString("database.url"),
			Host:     v.GetString("database.host"),
			Port:     v.GetString("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			Name:     v.GetString("database.name"),
			SSLMode:  v.GetString("database.sslmode"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
		},
		Auth: AuthConfig{
			JWTSecret:        v.GetString("auth.jwt_secret"),
			TokenTTL:         v.GetDuration("auth.token_ttl"),
			AdminEmails:      ParseAdminEmails(v.GetString("auth.admin_emails")),
			AdminTOTPSecret:  v.GetString("auth.admin_totp_secret"),
			TrustEmailHeader: v.GetBool("auth.trust_email_header"),
		},
		GitHub: GitHubConfig{
			Token:        v.GetString("github.token"),
			Owner:        v.GetString("github.owner"),
			Repo:         v.GetString("github.repo"),
			Branch:       v.GetString("github.branch"),
			ActivityPath: v.GetString("github.activity_path"),
			APIURL:       strings.TrimRight(v.GetString("github.api_url"), "/"),
			Timeout:      v.GetDuration("github.timeout"),
		},
		Search: SearchConfig{
			ElasticsearchURL: v.GetString("search.elasticsearch"),
			CacheTTL:         v.GetDuration("search.cache_ttl"),
			ReindexInterval:  v.GetDuration("search.reindex_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      v.GetBool("telemetry.enabled"),
			Endpoint:     v.GetString("telemetry.endpoint"),
			SamplingRate: v.GetFloat64("telemetry.sampling_rate"),
		},
		Calls: CallsConfig{
			RingTimeout:   v.GetDuration("calls.ring_timeout"),
			SweepInterval: v.GetDuration("calls.sweep_interval"),
			HistoryLimit:  v.GetInt("calls.history_limit"),
		},
		Ledger: LedgerConfig{
			MaxAttempts:     v.GetInt("ledger.max_attempts"),
			RemoteRetention: v.GetInt("ledger.remote_retention"),
			LocalRetention:  v.GetInt("ledger.local_retention"),
			LocalMaxAge:     v.GetDuration("ledger.local_max_age"),
			ConflictRetries: v.GetInt("ledger.conflict_retries"),
			PruneInterval:   v.GetDuration("ledger.prune_interval"),
		},
	}
}

// ParseAdminEmails splits a comma separated list into trimmed, lower-cased emails
func ParseAdminEmails(raw string) []string {
	emails := []string{}
	for _, e := range splitList(raw) {
		emails = append(emails, strings.ToLower(e))
	}
	return emails
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
