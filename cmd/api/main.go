// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carterperez-dev/judge/session-backend/internal/auth"
	"github.com/carterperez-dev/judge/session-backend/internal/config"
	"github.com/carterperez-dev/judge/session-backend/internal/core"
	"github.com/carterperez-dev/judge/session-backend/internal/health"
	"github.com/carterperez-dev/judge/session-backend/internal/middleware"
	"github.com/carterperez-dev/judge/session-backend/internal/server"
	"github.com/carterperez-dev/judge/session-backend/internal/user"
)

const (
	drainDelay = 5 * time.Second
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

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, core.MigrateUp); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	signer, err := auth.NewJWTSigner(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("token signer initialized",
		"algorithm", "ES256",
		"key_id", signer.KeyID(),
	)

	var sessionRepo auth.Repository
	switch cfg.Session.Store {
	case config.StoreRedis:
		sessionRepo = auth.NewRedisRepository(redis.Client, cfg.Session.SweepRetention)
	default:
		sessionRepo = auth.NewRepository(db.DB)
	}
	logger.Info("session store selected", "store", cfg.Session.Store)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	denylist := auth.NewDenylist(redis.Client)

	authSvc := auth.NewService(auth.ServiceConfig{
		Repository:            sessionRepo,
		Signer:                signer,
		Users:                 userSvc,
		Denylist:              denylist,
		AccessTokenTTL:        cfg.JWT.AccessTokenExpire,
		RefreshTokenTTL:       cfg.JWT.RefreshTokenExpire,
		RevokeSubjectOnReplay: cfg.Session.RevokeSubjectOnReplay,
		Logger:                logger,
	})
	authHandler := auth.NewHandler(authSvc, signer, cfg.Cookie)

	sweeper := auth.NewSweeper(
		sessionRepo,
		cfg.Session.SweepInterval,
		cfg.Session.SweepRetention,
		logger,
	)
	go sweeper.Run(ctx)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	trustedProxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	router := srv.Router()

	router.Use(chimw.RequestID)
	router.Use(middleware.TrustedRealIP(trustedProxies))
	router.Use(middleware.Logger(logger))

	limiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.Per(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		FailOpen: false,
		Logger:   logger,
	})
	defer limiter.Stop()

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", signer.GetJWKSHandler())

	authenticator := middleware.Authenticator(auth.NewAccessVerifier(signer, denylist))

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, limiter.Handler)
		userHandler.RegisterRoutes(r, authenticator)
	})

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
