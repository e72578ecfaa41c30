package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/config"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/health"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/handler"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/router"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/repository"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/service"

	"github.com/redis/go-redis/v9"
)

// NewCredentialIssuer builds the JWT manager from configuration. It is shared
// by the server and the operator CLI.
func NewCredentialIssuer(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, error) {
	policy, err := service.ParseRefreshPolicy(cfg.RefreshTokenPolicy)
	if err != nil {
		return nil, err
	}
	db, err := repository.OpenDatabase(repository.DatabaseOptions{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	closeDB := func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	if err := repository.Migrate(db); err != nil {
		_ = closeDB()
		return nil, err
	}

	readiness := health.NewProbeRunner(0)
	readiness.Register("database", func(ctx context.Context) error { return repository.Ping(ctx, db) })

	var (
		guard       service.RefreshReplayGuard = service.NewInMemoryRefreshReplayGuard()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			_ = closeDB()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		guard = service.NewRedisRefreshReplayGuard(redisClient, "")
		readiness.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	users := repository.NewUserRepository(db)
	creds := service.NewCredentialService(NewCredentialIssuer(cfg), users, guard, policy, service.CredentialTTLs{
		Access:  cfg.JWTAccessTTL,
		Refresh: cfg.JWTRefreshTTL,
		Reset:   cfg.JWTResetTTL,
	})
	activities := service.NewActivityStore(service.WithActivityCapacity(cfg.ActivityCapacity))
	auth := service.NewAuthService(users, creds, activities, logger)

	dep := router.Dependencies{
		AuthHandler:        handler.NewAuthHandler(auth, cfg.ExposeResetToken),
		ActivityHandler:    handler.NewActivityHandler(activities, activities),
		Verifier:           creds,
		CORSOrigins:        cfg.CORSOrigins,
		AuthRateLimitRPS:   cfg.AuthRateLimitRPS,
		AuthRateLimitBurst: cfg.AuthRateLimitBurst,
		Readiness:          readiness,
		EnableOTelHTTP:     cfg.EnableOTelHTTP,
	}
	var metricsServer *http.Server
	if runtime != nil && runtime.MetricsHandler != nil {
		if cfg.MetricsAddr == "" {
			dep.MetricsHandler = runtime.MetricsHandler
		} else {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", runtime.MetricsHandler)
			metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: cfg.ReadHeaderTimeout}
		}
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	a := New(cfg, logger, server, metricsServer, runtime, readiness)
	a.OnClose(closeDB)
	if redisClient != nil {
		a.OnClose(redisClient.Close)
	}
	logger.Info("application wired",
		"refresh_policy", string(policy),
		"activity_capacity", activities.Capacity(),
		"redis", redisClient != nil,
		"database_driver", cfg.DatabaseDriver,
	)
	return a, nil
}
