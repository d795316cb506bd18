package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/ledger"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/search"
	"go.uber.org/zap"
)

// Service names accepted in REQUIRED_SERVICES
const (
	ServiceRedis         = "redis"
	ServiceElasticsearch = "elasticsearch"
	ServiceGitHub        = "github"
)

// Check probes one backend
type Check func(ctx context.Context) error

// ServiceValidator makes startup fail when a backend the deployment
// declared required does not answer. Every one of them has a fallback, so
// without the declaration the server starts degraded instead.
type ServiceValidator struct {
	required []string
	checks   map[string]Check
	timeout  time.Duration
}

// NewServiceValidator creates a validator for cfg's required services
func NewServiceValidator(cfg *config.Config) *ServiceValidator {
	return &ServiceValidator{
		required: cfg.Server.RequiredServices,
		checks: map[string]Check{
			ServiceRedis:         redisCheck(cfg.Redis),
			ServiceElasticsearch: elasticsearchCheck(cfg.Search),
			ServiceGitHub:        githubCheck(cfg.GitHub),
		},
		timeout: 10 * time.Second,
	}
}

// ValidateServices runs the check of every required service and returns the
// first failure
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.required) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("Validating required services", zap.Strings("services", sv.required))

	for _, name := range sv.required {
		check, ok := sv.checks[name]
		if !ok {
			logger.Log.Warn("Unknown service type in validation", zap.String("service", name))
			continue
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, sv.timeout)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			logger.ErrorWithFields("Required service validation failed", err, zap.String("service", name))
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}

		logger.Log.Info("Service validated successfully", zap.String("service", name))
	}

	logger.Log.Info("All required services validated successfully")
	return nil
}

func redisCheck(cfg config.RedisConfig) Check {
	return func(ctx context.Context) error {
		client, err := cache.NewRedisClient(cfg.Host, cfg.Port, cfg.Password)
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Ping(ctx)
	}
}

func elasticsearchCheck(cfg config.SearchConfig) Check {
	return func(ctx context.Context) error {
		_, err := search.NewClient(ctx, cfg)
		return err
	}
}

// githubCheck reads the activity file. A missing file is fine since the
// first write creates it.
func githubCheck(cfg config.GitHubConfig) Check {
	return func(ctx context.Context) error {
		if !cfg.Configured() {
			return errors.New("GITHUB_TOKEN, GITHUB_REPO_OWNER and GITHUB_REPO_NAME are required")
		}
		_, err := ledger.NewContentsClient(cfg).GetFile(ctx, cfg.ActivityPath)
		if err != nil && !errors.Is(err, ledger.ErrFileNotFound) {
			return err
		}
		return nil
	}
}
