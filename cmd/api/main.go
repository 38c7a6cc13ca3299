// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/cadence-api/internal/admin"
	"github.com/carterperez-dev/cadence-api/internal/auth"
	"github.com/carterperez-dev/cadence-api/internal/checkin"
	"github.com/carterperez-dev/cadence-api/internal/config"
	"github.com/carterperez-dev/cadence-api/internal/core"
	"github.com/carterperez-dev/cadence-api/internal/health"
	"github.com/carterperez-dev/cadence-api/internal/ledger"
	"github.com/carterperez-dev/cadence-api/internal/middleware"
	"github.com/carterperez-dev/cadence-api/internal/profile"
	"github.com/carterperez-dev/cadence-api/internal/score"
	"github.com/carterperez-dev/cadence-api/internal/server"
	"github.com/carterperez-dev/cadence-api/internal/user"
	"github.com/carterperez-dev/cadence-api/internal/webhook"
)

const (
	drainDelay = 5 * time.Second

	checkinSubmitsPerMinute = 10
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	if cfg.IsDevelopment() {
		if keyErr := ensureDevKeys(cfg.JWT); keyErr != nil {
			return keyErr
		}
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	clock := core.SystemClock{}
	scorer := score.NewHeuristicScorer()

	profileSvc := profile.NewService(profile.Deps{
		DB:      db.DB,
		Tx:      db,
		Scorer:  scorer,
		Clock:   clock,
		Cadence: cfg.Cadence,
		Logger:  logger,
	})
	profileHandler := profile.NewHandler(profileSvc)

	checkinSvc := checkin.NewService(checkin.Deps{
		Tx:      db,
		Scorer:  scorer,
		Clock:   clock,
		Cadence: cfg.Cadence,
		Logger:  logger,
	})
	checkinHandler := checkin.NewHandler(checkinSvc)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo, profileSvc)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(jwtManager, userSvc, profileSvc, redis.Client, logger)
	authHandler := auth.NewHandler(authSvc)

	webhookSvc := webhook.NewService(webhook.Deps{
		DB:      db.DB,
		Tx:      db,
		Users:   userSvc,
		Clock:   clock,
		Cadence: cfg.Cadence,
		Webhook: cfg.Webhook,
		Logger:  logger,
		Providers: []webhook.Provider{
			webhook.NewStripeProvider(cfg.Stripe.WebhookSecret),
			webhook.NewRevenueCatProvider(cfg.RevenueCat.WebhookAuthToken),
		},
	})
	webhookHandler := webhook.NewHandler(webhookSvc, cfg.Webhook.MaxBodyBytes)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis, Optional: true},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Ledger:     ledger.NewRepository(db.DB),
		Webhooks:   webhookSvc,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	submitLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit:    middleware.PerMinute(checkinSubmitsPerMinute, checkinSubmitsPerMinute),
		KeyFunc:  middleware.KeyByUserAndEndpoint,
		FailOpen: true,
	})

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.Every(
				cfg.RateLimit.Window,
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen:   true,
			BypassFunc: middleware.BypassPrefixes("/v1/webhooks"),
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(authSvc)
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterRoutes(r, authenticator)
		profileHandler.RegisterRoutes(r, authenticator)
		checkinHandler.RegisterRoutes(r, authenticator, submitLimiter.Handler)
		webhookHandler.RegisterRoutes(r)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	go reprocessLoop(ctx, webhookSvc, cfg.Webhook.ReprocessAfter, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// reprocessLoop sweeps the webhook ledger for events that were recorded but
// never applied, once per interval, until ctx is cancelled.
func reprocessLoop(
	ctx context.Context,
	svc *webhook.Service,
	interval time.Duration,
	logger *slog.Logger,
) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ReprocessPending(ctx); err != nil {
				logger.Warn("webhook reprocess failed", "error", err)
			}
		}
	}
}

func ensureDevKeys(cfg config.JWTConfig) error {
	if _, err := os.Stat(cfg.PrivateKeyPath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	for _, p := range []string{cfg.PrivateKeyPath, cfg.PublicKeyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return err
		}
	}

	slog.Warn("generating development signing keys",
		"private_key", cfg.PrivateKeyPath,
	)
	return auth.GenerateKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath)
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
