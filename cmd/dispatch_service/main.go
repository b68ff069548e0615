package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/app"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/provider"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/repository/postgres"
	"github.com/rhdigital/docdispatch/internal/dispatch_service/storage"
	transporthttp "github.com/rhdigital/docdispatch/internal/dispatch_service/transport/http"
	"github.com/rhdigital/docdispatch/internal/platform/config"
	"github.com/rhdigital/docdispatch/internal/platform/database"
	"github.com/rhdigital/docdispatch/internal/platform/logger"
)

func main() {
	cfg, err := config.Load("./configs", "config.defaults")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Document dispatch service starting...", "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := postgres.EnsureSchema(ctx, dbPool); err != nil {
		appLogger.Error("Failed to ensure database schema", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Successfully connected to PostgreSQL database")

	fileStore, err := storage.NewDirStore(cfg.ProcessedDir, cfg.SentDir, appLogger)
	if err != nil {
		appLogger.Error("Failed to open document areas", "error", err)
		os.Exit(1)
	}

	matcher, err := domain.NewMatcher(cfg.FilenamePattern)
	if err != nil {
		appLogger.Error("Invalid filename pattern", "error", err)
		os.Exit(1)
	}

	gateway := provider.NewEvolutionProvider(
		appLogger, cfg.GatewayServerURL, cfg.GatewayAPIKey, cfg.GatewayInstance,
		cfg.GatewayRatePerSec,
		&http.Client{Timeout: cfg.GatewayTimeout + time.Second},
	)
	pacing := app.NewPacingScheduler(cfg.PacingMinDelay, cfg.PacingMaxDelay, appLogger)

	runRepo := postgres.NewPgRunRepository(dbPool)
	recipientRepo := postgres.NewPgRecipientRepository(dbPool)

	dispatchService := app.NewDispatchAppService(
		runRepo, recipientRepo, fileStore, gateway, matcher, pacing,
		app.Config{
			GatewayTimeout:     cfg.GatewayTimeout,
			OrganizationName:   cfg.OrganizationName,
			DefaultCountryCode: cfg.DefaultCountryCode,
		},
		appLogger,
	)

	if err := dispatchService.ResumeInterruptedRuns(ctx); err != nil {
		appLogger.Error("Failed to resume interrupted runs", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		transporthttp.NewDispatchHandler(dispatchService, appLogger).RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutdown signal received; draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	}
	dispatchService.Shutdown(shutdownCtx)
	appLogger.Info("Document dispatch service shut down.")
}
