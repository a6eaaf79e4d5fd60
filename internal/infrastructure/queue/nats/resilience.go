package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/infrastructure/resilience"
)

// brokerUnavailable lists publish errors that clear up once the connection recovers.
var brokerUnavailable = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
}

// callerFaults never reach the broker and say nothing about its health.
var callerFaults = []error{
	nats.ErrMaxPayload,
	nats.ErrBadSubject,
	context.Canceled,
	context.DeadlineExceeded,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case isAny(err, callerFaults):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isAny(err, brokerUnavailable):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// wrapTemporaryIfNeeded marks broker outages as ErrTemporary so the upload
// surfaces as 503 while the document row stays in uploading.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "schedule phases", err)
	}
	return err
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
