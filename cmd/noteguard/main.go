package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/noteguard/noteguard/internal/app"
	"github.com/noteguard/noteguard/internal/audit"
	audithttp "github.com/noteguard/noteguard/internal/audit/http"
	"github.com/noteguard/noteguard/internal/auth"
	"github.com/noteguard/noteguard/internal/observability"
	"github.com/noteguard/noteguard/internal/pipeline"
	"github.com/noteguard/noteguard/internal/platform/cache"
	"github.com/noteguard/noteguard/internal/platform/db"
	"github.com/noteguard/noteguard/internal/ratelimit"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/sessions"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
	"github.com/noteguard/noteguard/jobs"
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
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	limiter := ratelimit.New(
		ratelimit.WithLimit(cfg.LoginRateLimit),
		ratelimit.WithWindow(cfg.LoginRateWindow),
	)
	registry := sessions.NewRegistry(cfg.SessionTTL)
	metrics.TrackActiveSessions(registry.Count)

	guard := pipeline.New(pipeline.Config{
		Limiter:   limiter,
		Registry:  registry,
		Engine:    rbac.DefaultEngine(),
		Sessions:  sessionManager,
		Templates: templates,
		Logger:    logger,
		Recorder:  metrics,
	})

	auditLogger := shared.NewAuditLogger(dbpool)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, logger, cfg.BcryptCost)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, guard, auditLogger)
	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, templates, csrfManager)

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(queueOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("jobs inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guard,
		Registry:       registry,
		AuthService:    authService,
		AuthHandler:    authHandler,
		Metrics:        metrics,
		Jobs:           jobs.NewHandler(inspector, jobsClient, logger),
		Audit:          auditHandler,
		AccessLog:      !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("noteguard listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return limiter.Run(groupCtx, cfg.SweepInterval)
	})
	group.Go(func() error {
		return registry.Run(groupCtx, cfg.SweepInterval)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("noteguard stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("noteguard stopped")
}
