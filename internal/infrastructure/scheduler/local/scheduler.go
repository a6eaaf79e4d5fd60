// Package local runs phase chains in-process on a bounded worker pool.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type Options struct {
	Workers   int
	QueueSize int
}

// Scheduler keeps at most one chain per document id queued or running.
// Different ids run concurrently up to Workers.
type Scheduler struct {
	runner ports.DocumentProcessor
	logger *slog.Logger
	jobs   chan string

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
}

func New(runner ports.DocumentProcessor, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:    runner,
		logger:    logger,
		jobs:      make(chan string, opts.QueueSize),
		runCtx:    runCtx,
		cancelRun: cancel,
		inFlight:  make(map[string]struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.work()
	}
	return s
}

// Schedule never waits for the chain. The caller's ctx only bounds the hand-off;
// the chain itself runs until it finishes or the scheduler shuts down.
func (s *Scheduler) Schedule(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(documentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "schedule phases", errors.New("document id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.WrapError(domain.ErrTemporary, "schedule phases", errors.New("scheduler is shut down"))
	}
	if _, ok := s.inFlight[documentID]; ok {
		s.logger.Info("phase_chain_already_scheduled", "document_id", documentID)
		return nil
	}

	select {
	case s.jobs <- documentID:
		s.inFlight[documentID] = struct{}{}
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "schedule phases", fmt.Errorf("queue full (%d pending)", cap(s.jobs)))
	}
}

// Pending reports how many documents are queued or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Shutdown stops accepting work and waits for queued chains. When ctx ends first,
// running chains are cancelled and their documents keep the last committed state.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelRun()
		return nil
	case <-ctx.Done():
		s.cancelRun()
		<-done
		return ctx.Err()
	}
}

func (s *Scheduler) work() {
	defer s.wg.Done()
	for documentID := range s.jobs {
		s.run(documentID)
	}
}

func (s *Scheduler) run(documentID string) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, documentID)
		s.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("phase_chain_panic", "document_id", documentID, "panic", fmt.Sprint(rec))
		}
	}()

	if err := s.runner.Run(s.runCtx, documentID); err != nil {
		s.logger.Error("phase_chain_failed", "document_id", documentID, "error", err)
	}
}
