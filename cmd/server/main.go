package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailroom/internal/api"
	"mailroom/internal/config"
	"mailroom/internal/db"
	"mailroom/internal/email"
	"mailroom/internal/metrics"
	"mailroom/internal/queue"
	"mailroom/internal/template"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Job Store
	// ------------------------------------------------
	var store db.JobStore
	if cfg.DatabaseURL != "" {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory job store")
		store = db.NewMemory()
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Transport (sandbox when no SMTP host configured)
	// ------------------------------------------------
	var transport email.Transport
	var sandbox *email.Sandbox

	if cfg.SMTPHost != "" {
		transport = &email.SMTP{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SendTimeout,
		}
	} else {
		logger.Warn("SMTP_HOST not set, using sandbox transport")
		sandbox = email.NewSandbox(logger)
		transport = sandbox
	}

	// ------------------------------------------------
	// Templates
	// ------------------------------------------------
	registry, err := template.NewRegistry()
	if err != nil {
		logger.Fatal("failed to build template registry", zap.Error(err))
	}

	// ------------------------------------------------
	// Dispatcher + Scheduler
	// ------------------------------------------------
	dispatcher := &queue.Dispatcher{
		Store:       store,
		Transport:   transport,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		Log:         logger,
		SendTimeout: cfg.SendTimeout,
	}

	scheduler := queue.NewScheduler(dispatcher, cfg.TickInterval, cfg.BatchLimit, logger)

	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedulerDone)
	}()

	// ------------------------------------------------
	// Enqueuer + Open Tracker
	// ------------------------------------------------
	enqueuer := &queue.Enqueuer{
		Store:              store,
		Templates:          registry,
		Log:                logger,
		DefaultFrom:        cfg.MailFrom,
		DefaultMaxAttempts: cfg.MaxAttempts,
		BaseURL:            cfg.BaseURL,
		Kick:               scheduler.Kick,
	}

	tracker := &queue.Tracker{
		Store: store,
		Log:   logger,
	}

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	handler := &api.Handler{
		Enqueuer: enqueuer,
		Tracker:  tracker,
		Store:    store,
		Sandbox:  sandbox,
		Log:      logger,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: handler.Routes(),
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	<-schedulerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
