package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/medical-portal/internal/adapters/http"
	"github.com/kirillkom/medical-portal/internal/bootstrap"
	"github.com/kirillkom/medical-portal/internal/config"
	"github.com/kirillkom/medical-portal/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("api", "info").Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.ProcessAPI, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Ingestor:   app.Ingestor,
		Documents:  app.Documents,
		Presence:   app.Presence,
		Stats:      app.Stats,
		Roles:      app.Roles,
		Identities: app.Identities,
		Sessions:   app.Sessions,
		Metrics:    app.HTTPMetrics,
		Logger:     logger,
	}).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "scheduler_mode", cfg.SchedulerMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", "error", err)
	}
	app.Close(shutdownCtx)
}
