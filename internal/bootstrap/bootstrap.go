package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-portal/internal/config"
	"github.com/kirillkom/medical-portal/internal/core/ports"
	"github.com/kirillkom/medical-portal/internal/core/usecase"
	"github.com/kirillkom/medical-portal/internal/infrastructure/analysis/ollama"
	"github.com/kirillkom/medical-portal/internal/infrastructure/analysis/static"
	"github.com/kirillkom/medical-portal/internal/infrastructure/identity/jwtauth"
	"github.com/kirillkom/medical-portal/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medical-portal/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medical-portal/internal/infrastructure/resilience"
	"github.com/kirillkom/medical-portal/internal/infrastructure/scheduler/local"
	"github.com/kirillkom/medical-portal/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medical-portal/internal/observability/metrics"
)

// Process selects which side of the phase hand-off this binary plays.
type Process string

const (
	ProcessAPI    Process = "api"
	ProcessWorker Process = "worker"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	HTTPMetrics  *metrics.HTTPServerMetrics
	PhaseMetrics *metrics.PhaseMetrics

	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Presence   ports.PresenceReader
	Stats      ports.StatsReader
	Roles      ports.RoleManager
	Identities ports.IdentityResolver
	Sessions   ports.SessionStore

	// Queue is set only in nats scheduler mode.
	Queue *nats.Scheduler
	// Dispatcher runs chains in this process: every upload in local mode,
	// every consumed message in the worker.
	Dispatcher ports.PhaseScheduler

	db    *sql.DB
	local *local.Scheduler
}

func New(ctx context.Context, cfg config.Config, process Process, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if process == ProcessWorker && cfg.SchedulerMode != config.SchedulerModeNATS {
		return nil, fmt.Errorf("worker requires SCHEDULER_MODE=%s", config.SchedulerModeNATS)
	}

	app := &App{Config: cfg, Logger: logger}
	if process == ProcessAPI {
		app.HTTPMetrics = metrics.NewHTTPServerMetrics(string(process))
		app.PhaseMetrics = metrics.NewPhaseMetrics(string(process), app.HTTPMetrics.Registry())
	} else {
		app.PhaseMetrics = metrics.NewPhaseMetrics(string(process), nil)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.db = db
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	repo := postgres.NewDocumentRepository(db)
	sessions := postgres.NewSessionRepository(db)
	roleStore := jwtauth.NewCachedRoleStore(postgres.NewRoleRepository(db), cfg.RoleCacheSize, cfg.RoleCacheTTL)

	analysisExecutor := resilience.NewExecutor(
		resilience.DefaultConfig().Override(cfg.ResilienceRetryMaxAttempts, cfg.ResilienceOpenTimeout),
		logger,
	).WithStateObserver(app.PhaseMetrics.ObserveBreakerState)

	analyzer, err := newAnalyzer(cfg, analysisExecutor)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	runner := usecase.NewPhaseRunner(repo, analyzer, usecase.PhaseDelays{
		Processing: cfg.PhaseProcessingDelay,
		Index:      cfg.PhaseIndexDelay,
	}, app.PhaseMetrics, logger)

	var scheduler ports.PhaseScheduler
	if cfg.SchedulerMode == config.SchedulerModeNATS {
		publishExecutor := resilience.NewExecutor(
			resilience.PublishConfig().Override(cfg.ResilienceRetryMaxAttempts, cfg.ResilienceOpenTimeout),
			logger,
		).WithStateObserver(app.PhaseMetrics.ObserveBreakerState)
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: publishExecutor,
			Logger:             logger,
		})
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("init phase queue: %w", err)
		}
		app.Queue = queue
		scheduler = queue
	}
	if cfg.SchedulerMode == config.SchedulerModeLocal || process == ProcessWorker {
		app.local = local.New(runner, local.Options{
			Workers:   cfg.SchedulerWorkers,
			QueueSize: cfg.SchedulerQueueSize,
		}, logger)
		app.Dispatcher = app.local
		if scheduler == nil {
			scheduler = app.local
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	identities, err := jwtauth.NewResolver(jwtauth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		Leeway: cfg.JWTLeeway,
	}, roleStore, logger)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("init identity resolver: %w", err)
	}

	presence := usecase.NewPresenceUseCase(sessions, cfg.PresenceWindow)
	app.Ingestor = usecase.NewIngestDocumentUseCase(repo, storage, scheduler, usecase.UploadLimits{
		ReferenceBytes: cfg.MaxReferenceUploadBytes(),
		PatientBytes:   cfg.MaxPatientUploadBytes(),
	}, logger)
	app.Documents = usecase.NewDocumentQueryUseCase(repo)
	app.Presence = presence
	app.Stats = usecase.NewStatsUseCase(repo, presence)
	app.Roles = usecase.NewRoleUseCase(roleStore, logger)
	app.Identities = identities
	app.Sessions = sessions

	return app, nil
}

func newAnalyzer(cfg config.Config, executor *resilience.Executor) (ports.AnalysisProvider, error) {
	switch cfg.AnalysisProvider {
	case config.AnalysisProviderOllama:
		return ollama.NewAnalyzer(ollama.New(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout, executor)), nil
	case config.AnalysisProviderStatic:
		return static.NewAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.AnalysisProvider)
	}
}

// Close drains the local scheduler within ctx, then releases connections.
// Chains still running when ctx ends leave their documents in the last committed state.
func (a *App) Close(ctx context.Context) {
	var errs []error
	if a.local != nil {
		errs = append(errs, a.local.Shutdown(ctx))
	}
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("shutdown_incomplete", "error", err)
	}
}
