package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/febriansr/authgate/config"
	"github.com/febriansr/authgate/internal/email"
	"github.com/febriansr/authgate/internal/health"
	"github.com/febriansr/authgate/internal/infrastructure/postgres"
	ctxlog "github.com/febriansr/authgate/internal/log"
	"github.com/febriansr/authgate/internal/metrics"
	"github.com/febriansr/authgate/internal/purge"
	"github.com/febriansr/authgate/internal/rpc"
	httptransport "github.com/febriansr/authgate/internal/transport/http"
	"github.com/febriansr/authgate/internal/transport/http/handler"
	"github.com/febriansr/authgate/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	tokenRepo := postgres.NewVerificationTokenRepository(pool)

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	authUsecase := usecase.NewAuthUsecase(
		userRepo, sessionRepo, tokenRepo, emailSender,
		[]byte(cfg.SessionSecret), cfg.AppBaseURL, logger,
	)
	userUsecase := usecase.NewUserUsecase(userRepo)

	dispatcher := rpc.NewDispatcher(logger)
	rpc.RegisterAuthProcedures(dispatcher, authUsecase)
	rpc.RegisterUserProcedures(dispatcher, userUsecase)

	rpcHandler := handler.NewRPCHandler(dispatcher, authUsecase, cfg.Env, logger)
	pages := handler.NewPageHandler(authUsecase, cfg.AppBaseURL, logger)

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	purger, err := purge.New(sessionRepo, tokenRepo, cfg.PurgeCron, logger)
	if err != nil {
		stop()
		log.Fatalf("purger: %v", err)
	}
	go purger.Start(ctx)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, rpcHandler, pages),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
