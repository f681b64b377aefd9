package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arkivo-dms/arkivo/internal/app"
	"github.com/arkivo-dms/arkivo/internal/audit"
	"github.com/arkivo-dms/arkivo/internal/auth"
	"github.com/arkivo-dms/arkivo/internal/authz"
	"github.com/arkivo-dms/arkivo/internal/documents"
	"github.com/arkivo-dms/arkivo/internal/iam"
	"github.com/arkivo-dms/arkivo/internal/observability"
	platformcache "github.com/arkivo-dms/arkivo/internal/platform/cache"
	platformdb "github.com/arkivo-dms/arkivo/internal/platform/db"
	"github.com/arkivo-dms/arkivo/internal/shared"
	"github.com/arkivo-dms/arkivo/internal/users"
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

	pool, err := platformdb.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "arkivo_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	iamRepo := iam.NewRepository(pool, logger)
	iamService := iam.NewService(iamRepo)

	if err := iam.Bootstrap(ctx, iamRepo, logger); err != nil {
		logger.Error("bootstrap iam", slog.Any("error", err))
		os.Exit(1)
	}

	usersService := users.NewService(users.NewRepository(pool))
	auditService := audit.NewService(audit.NewRepository(pool), logger)

	guard := authz.Middleware{
		Gate:       authz.NewGate(iamRepo, logger),
		Principals: usersService,
		Logger:     logger,
		Recorder:   auditService,
		Observe: func(result authz.Result) {
			metrics.ObserveDecision(result.Action, string(result.Effect), result.Elapsed)
		},
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, usersService, sessionManager, csrfManager),
		UsersHandler:     users.NewHandler(logger, usersService, guard),
		IAMHandler:       iam.NewHandler(logger, iamService, guard),
		DocumentsHandler: documents.NewHandler(logger, documents.NewService(documents.NewRepository(pool)), guard),
		AuditHandler:     audit.NewHandler(logger, auditService, guard),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
