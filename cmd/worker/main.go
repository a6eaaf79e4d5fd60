package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/medical-portal/internal/bootstrap"
	"github.com/kirillkom/medical-portal/internal/config"
	"github.com/kirillkom/medical-portal/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("worker", "info").Error("config_invalid", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.ProcessWorker, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.PhaseMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.Consume(ctx, func(handlerCtx context.Context, documentID string) error {
		return app.Dispatcher.Schedule(handlerCtx, documentID)
	})
	if err != nil {
		logger.Error("worker_consume_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	app.Close(shutdownCtx)
}
