package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wardenhq/warden/internal/app"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/platform/cache"
	"github.com/wardenhq/warden/internal/platform/db"
	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/roles"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := rbac.NewStore(pool)
	effectiveCache := rbac.NewEffectiveCache(redisClient, cfg.EffectiveTTL)
	resolver := rbac.NewResolver(store, effectiveCache, logger)
	invalidator := rbac.NewInvalidator(store, effectiveCache, logger)
	locker := shared.NewMutationLocker(redisClient, cfg.MutationLockTTL, cfg.MutationLockWait)
	rbacService := rbac.NewService(store, locker, invalidator, logger)

	if err := rbacService.SyncCatalog(ctx); err != nil {
		logger.Error("sync permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	if _, err := jobsClient.EnqueueCacheWarmup(ctx, jobs.CacheWarmupPayload{}); err != nil {
		logger.Warn("enqueue cache warmup", slog.Any("error", err))
	}

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, invalidator)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, rolesRepo, resolver, logger)

	rbacMiddleware := rbac.Middleware{Source: usersService, Logger: logger}

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)

	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)
	rbacHandler := rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:       cfg,
		Logger:       logger,
		RolesHandler: rolesHandler,
		RBACHandler:  rbacHandler,
		UsersHandler: usersHandler,
		AuditHandler: auditHandler,
		JobsHandler:  jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
