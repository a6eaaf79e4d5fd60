package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

type blockingRunner struct {
	mu      sync.Mutex
	calls   map[string]int
	started chan string
	release chan struct{}
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		calls:   map[string]int{},
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, id string) error {
	r.mu.Lock()
	r.calls[id]++
	r.mu.Unlock()
	r.started <- id
	select {
	case <-r.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.err
}

func (r *blockingRunner) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func waitStarted(t *testing.T, r *blockingRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("runner was not started")
		return ""
	}
}

func TestScheduleRunsOneChainPerDocument(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, Options{Workers: 2}, nil)

	if err := s.Schedule(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	waitStarted(t, runner)
	if err := s.Schedule(context.Background(), "doc-1"); err != nil {
		t.Fatalf("second Schedule() error = %v", err)
	}
	if s.Pending() != 1 {
		t.Fatalf("expected 1 pending chain, got %d", s.Pending())
	}

	close(runner.release)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if runner.count("doc-1") != 1 {
		t.Fatalf("expected single run for doc-1, got %d", runner.count("doc-1"))
	}
}

func TestScheduleRunsDifferentDocumentsConcurrently(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, Options{Workers: 2}, nil)

	_ = s.Schedule(context.Background(), "doc-1")
	_ = s.Schedule(context.Background(), "doc-2")

	seen := map[string]bool{waitStarted(t, runner): true, waitStarted(t, runner): true}
	if !seen["doc-1"] || !seen["doc-2"] {
		t.Fatalf("expected both chains running at once, got %v", seen)
	}

	close(runner.release)
	_ = s.Shutdown(context.Background())
}

func TestScheduleReportsFullQueueAsTemporary(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, Options{Workers: 1, QueueSize: 1}, nil)

	_ = s.Schedule(context.Background(), "doc-1")
	waitStarted(t, runner)
	if err := s.Schedule(context.Background(), "doc-2"); err != nil {
		t.Fatalf("queued Schedule() error = %v", err)
	}
	err := s.Schedule(context.Background(), "doc-3")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}

	close(runner.release)
	_ = s.Shutdown(context.Background())
}

func TestScheduleAfterShutdown(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, Options{Workers: 1}, nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := s.Schedule(context.Background(), "doc-1"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if err := s.Schedule(context.Background(), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestShutdownDeadlineCancelsRunningChains(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, Options{Workers: 1}, nil)
	_ = s.Schedule(context.Background(), "doc-1")
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if s.Pending() != 0 {
		t.Fatalf("expected cancelled chain to be released, got %d pending", s.Pending())
	}
}

func TestFailedChainReleasesDocument(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("analysis down")
	close(runner.release)
	s := New(runner, Options{Workers: 1}, nil)

	_ = s.Schedule(context.Background(), "doc-1")
	waitStarted(t, runner)
	_ = s.Shutdown(context.Background())

	if s.Pending() != 0 {
		t.Fatalf("expected no pending chains, got %d", s.Pending())
	}
}
