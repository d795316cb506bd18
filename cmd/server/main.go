package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/cache"
	"github.com/orkutrevival/backend/internal/calls"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/handlers"
	"github.com/orkutrevival/backend/internal/ledger"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/middleware"
	"github.com/orkutrevival/backend/internal/search"
	"github.com/orkutrevival/backend/internal/telemetry"
	"github.com/orkutrevival/backend/internal/validation"
	"github.com/orkutrevival/backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "orkut-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	if err := logger.Initialize(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Close()

	logger.Log.Info("=== Orkut backend starting ===",
		zap.String("environment", cfg.Server.Environment))

	if cfg.Auth.JWTSecret == "" {
		logger.FatalWithFields("JWT_SECRET environment variable is required", errors.New("missing JWT secret"))
	}

	if err := validation.NewServiceValidator(cfg).ValidateServices(context.Background()); err != nil {
		logger.FatalWithFields("Required service unavailable", err)
	}

	tracerProvider, err := telemetry.InitTracer(cfg.Telemetry, serviceName, cfg.Server.Environment)
	if err != nil {
		logger.WarnWithFields("Tracing disabled", err)
	}
	defer func() {
		if err := telemetry.Shutdown(tracerProvider, 5*time.Second); err != nil {
			logger.WarnWithFields("Tracer shutdown failed", err)
		}
	}()

	if err := database.Initialize(cfg.Database, cfg.Server.Environment); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()

	if tracerProvider != nil {
		if err := database.DB.Use(telemetry.GORMTracingPlugin()); err != nil {
			logger.WarnWithFields("Failed to install GORM tracing", err)
		}
	}

	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	// Redis is optional: rate limits, the ledger breaker and the search
	// cache fall back to process memory without it
	redisClient, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		logger.WarnWithFields("Redis unavailable, using in-process state", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	admins := auth.NewAdminRegistry(cfg.Auth.AdminEmails, cfg.Auth.AdminTOTPSecret)
	if !admins.Configured() {
		logger.Log.Warn("ADMIN_EMAILS is empty, community changes are open to everyone")
	}
	authService := auth.NewService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, admins)

	// WebSocket hub and handler
	wsHub := websocket.NewHub()
	wsHandler := websocket.NewHandler(wsHub, authService, cfg.Server.CORSOrigins)
	websocket.NewPresenceManager(wsHub, database.DB)
	go wsHub.Run()

	// Calls
	callService := calls.NewService(database.DB, wsHub, cfg.Calls)
	wsHandler.SetSignalRouter(callService)
	callSweeper := calls.NewSweeper(callService, cfg.Calls.SweepInterval)
	callSweeper.Start()
	defer callSweeper.Stop()

	// Activity ledger
	var remote ledger.Remote
	if cfg.GitHub.Configured() {
		remote = ledger.NewContentsClient(cfg.GitHub)
	} else {
		logger.Log.Warn("GitHub not configured, activities are stored locally only")
	}
	ledgerService := ledger.NewService(
		ledger.NewStore(database.DB, cfg.Ledger.LocalRetention),
		ledger.NewBreaker(redisClient, cfg.Ledger.MaxAttempts),
		remote,
		cfg.Ledger,
		cfg.GitHub.ActivityPath,
		cfg.Server.Environment,
	)
	janitor := ledger.NewJanitor(ledgerService, cfg.Ledger.PruneInterval)
	janitor.Start()
	defer janitor.Stop()

	// Search
	searchService := initSearch(cfg, redisClient)
	if searchService.Enabled() {
		reindexer := search.NewReindexer(searchService, database.DB, cfg.Search.ReindexInterval)
		reindexer.Start()
		defer reindexer.Stop()
	}

	h := handlers.NewHandlers(authService)
	h.SetCallService(callService)
	h.SetLedger(ledgerService)
	h.SetSearch(searchService)
	h.SetNotifier(wsHub)
	h.SetTrustEmailHeader(cfg.Auth.TrustEmailHeader)
	if cfg.Auth.TrustEmailHeader {
		logger.Log.Warn("AUTH_TRUST_EMAIL_HEADER is on, community creation accepts unauthenticated admin emails")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	if tracerProvider != nil {
		r.Use(middleware.TracingMiddleware(serviceName)...)
	}
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/ws"})))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-Email", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RateLimitSmart(middleware.RateLimitConfig{
		Limit:  cfg.Server.RateLimit,
		Window: cfg.Server.RateWindow,
	}))
	h.RegisterRoutes(api, middleware.RateLimitSmart(middleware.AuthRateLimitConfig()))

	ws := api.Group("/ws")
	{
		// auth via ?token= or the Authorization header
		ws.GET("", wsHandler.HandleWebSocket)
		ws.GET("/metrics", middleware.RequireAuth(authService), wsHandler.HandleMetrics)
		ws.POST("/online", middleware.RequireAuth(authService), wsHandler.HandleOnlineStatus)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Orkut backend listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := wsHandler.Shutdown(ctx); err != nil {
		logger.WarnWithFields("WebSocket shutdown warning", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("Server exited")
}

// initSearch connects to Elasticsearch when configured. Any failure leaves
// search on the SQL fallback.
func initSearch(cfg *config.Config, redisClient *cache.RedisClient) *search.Service {
	if cfg.Search.ElasticsearchURL == "" {
		logger.Log.Info("ELASTICSEARCH_URL not set, search uses the database")
		return search.NewService(nil, database.DB, nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := search.NewClient(ctx, cfg.Search)
	if err != nil {
		logger.WarnWithFields("Elasticsearch unavailable, search uses the database", err)
		return search.NewService(nil, database.DB, nil)
	}

	rebuild, err := client.EnsureIndices(ctx)
	if err != nil {
		logger.WarnWithFields("Failed to prepare search indices, search uses the database", err)
		return search.NewService(nil, database.DB, nil)
	}
	if rebuild {
		written, err := search.Reindex(ctx, client, database.DB)
		if err != nil {
			logger.WarnWithFields("Initial reindex incomplete", err, zap.Int("written", written))
		} else {
			logger.Log.Info("Search indices rebuilt", zap.Int("documents", written))
		}
	}

	return search.NewService(client, database.DB, search.NewResultCache(redisClient, cfg.Search.CacheTTL))
}
