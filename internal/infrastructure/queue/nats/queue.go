package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/infrastructure/resilience"
)

const workerQueueGroup = "phase-workers"

// Scheduler hands freshly uploaded documents to the worker fleet over NATS.
// Publishing is fire-and-forget; one worker in the queue group runs the phase chain.
type Scheduler struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
	now      func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

// phaseMessage is the wire payload on the phase subject.
type phaseMessage struct {
	DocumentID  string    `json:"document_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func New(url, subject string, options Options) (*Scheduler, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("medical-portal"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Scheduler{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *Scheduler) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Scheduler) Schedule(ctx context.Context, documentID string) error {
	payload, err := encodePhaseMessage(documentID, s.now())
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := s.conn.Publish(s.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if s.executor != nil {
		err = s.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Consume blocks until ctx is done, running handler for every scheduled document.
func (s *Scheduler) Consume(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := s.conn.QueueSubscribe(s.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		documentID, err := decodePhaseMessage(msg.Data)
		if err != nil {
			s.logger.Error("phase_message_invalid", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, documentID); err != nil {
			s.logger.Error("phase_dispatch_failed", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodePhaseMessage(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "schedule phases", errors.New("document id is required"))
	}
	payload, err := json.Marshal(phaseMessage{DocumentID: documentID, ScheduledAt: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal phase message: %w", err)
	}
	return payload, nil
}

func decodePhaseMessage(data []byte) (string, error) {
	var msg phaseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("unmarshal phase message: %w", err)
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return "", errors.New("phase message without document id")
	}
	return msg.DocumentID, nil
}
