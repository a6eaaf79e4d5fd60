package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

// PhaseDelays are the pauses before each forward transition.
type PhaseDelays struct {
	Processing time.Duration
	Index      time.Duration
}

func DefaultPhaseDelays() PhaseDelays {
	return PhaseDelays{
		Processing: 1 * time.Second,
		Index:      3 * time.Second,
	}
}

// TransitionObserver receives one call per committed transition.
type TransitionObserver interface {
	ObserveTransition(from, to domain.DocumentStatus, sinceCreated time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(domain.DocumentStatus, domain.DocumentStatus, time.Duration) {}

// PhaseRunner drives one document through
// uploading -> processing -> indexed, or processing -> error.
// A document is advanced by at most one runner at a time; every write is a
// compare-and-set against the status the runner expects.
type PhaseRunner struct {
	repo     ports.DocumentRepository
	analyzer ports.AnalysisProvider
	delays   PhaseDelays
	observer TransitionObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewPhaseRunner(
	repo ports.DocumentRepository,
	analyzer ports.AnalysisProvider,
	delays PhaseDelays,
	observer TransitionObserver,
	logger *slog.Logger,
) *PhaseRunner {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PhaseRunner{
		repo:     repo,
		analyzer: analyzer,
		delays:   delays,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *PhaseRunner) Run(ctx context.Context, documentID string) error {
	doc, err := r.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusUploading {
		r.logger.Info("phase_run_skipped", "document_id", documentID, "status", string(doc.Status))
		return nil
	}

	if err := sleep(ctx, r.delays.Processing); err != nil {
		return err
	}
	progress := domain.ProgressProcessing
	if err := r.transition(ctx, doc, domain.StatusUploading, domain.DocumentPatch{
		Status:   domain.StatusProcessing,
		Progress: &progress,
	}); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := sleep(ctx, r.delays.Index); err != nil {
		return err
	}

	analysis, err := r.analyzer.Analyze(ctx, doc)
	if err != nil {
		analyzeErr := domain.WrapError(domain.ErrAnalysisFailed, "analyze document", err)
		if failErr := r.markFailed(ctx, doc, analyzeErr); failErr != nil {
			return fmt.Errorf("%w; mark error status: %v", analyzeErr, failErr)
		}
		return analyzeErr
	}

	indexed := domain.ProgressIndexed
	if err := r.transition(ctx, doc, domain.StatusProcessing, domain.DocumentPatch{
		Status:   domain.StatusIndexed,
		Progress: &indexed,
		Analysis: &analysis,
	}); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}
	return nil
}

func (r *PhaseRunner) markFailed(ctx context.Context, doc *domain.Document, cause error) error {
	message := cause.Error()
	return r.transition(ctx, doc, domain.StatusProcessing, domain.DocumentPatch{
		Status: domain.StatusError,
		Error:  &message,
	})
}

func (r *PhaseRunner) transition(ctx context.Context, doc *domain.Document, from domain.DocumentStatus, patch domain.DocumentPatch) error {
	if err := r.repo.Patch(ctx, doc.ID, from, patch); err != nil {
		return err
	}
	*doc = patch.Apply(*doc)

	r.observer.ObserveTransition(from, patch.Status, r.now().Sub(doc.CreatedAt))
	r.logger.Info("document_transition",
		"document_id", doc.ID,
		"from", string(from),
		"to", string(patch.Status),
		"progress", doc.Progress,
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
