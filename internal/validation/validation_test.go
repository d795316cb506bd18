package validation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func githubConfig(url string) config.GitHubConfig {
	return config.GitHubConfig{
		Token:        "token",
		Owner:        "orkut",
		Repo:         "ledger",
		Branch:       "main",
		ActivityPath: "data/user-activity.json",
		APIURL:       url,
		Timeout:      5 * time.Second,
	}
}

func TestNothingRequired(t *testing.T) {
	sv := NewServiceValidator(&config.Config{})
	assert.NoError(t, sv.ValidateServices(context.Background()))
}

func TestUnknownServiceIsSkipped(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RequiredServices = []string{"gorse"}
	assert.NoError(t, NewServiceValidator(cfg).ValidateServices(context.Background()))
}

func TestFirstFailureStopsValidation(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RequiredServices = []string{ServiceRedis, ServiceGitHub}
	sv := NewServiceValidator(cfg)

	var ran []string
	sv.checks[ServiceRedis] = func(ctx context.Context) error {
		ran = append(ran, ServiceRedis)
		return errors.New("connection refused")
	}
	sv.checks[ServiceGitHub] = func(ctx context.Context) error {
		ran = append(ran, ServiceGitHub)
		return nil
	}

	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"redis"`)
	assert.Equal(t, []string{ServiceRedis}, ran)
}

func TestElasticsearchNotConfigured(t *testing.T) {
	err := elasticsearchCheck(config.SearchConfig{})(context.Background())
	assert.ErrorIs(t, err, search.ErrNotConfigured)
}

func TestGitHubCheck(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		assert.Error(t, githubCheck(config.GitHubConfig{})(context.Background()))
	})

	t.Run("missing file is fine", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}))
		defer srv.Close()

		assert.NoError(t, githubCheck(githubConfig(srv.URL))(context.Background()))
	})

	t.Run("bad credentials fail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		}))
		defer srv.Close()

		assert.Error(t, githubCheck(githubConfig(srv.URL))(context.Background()))
	})
}
