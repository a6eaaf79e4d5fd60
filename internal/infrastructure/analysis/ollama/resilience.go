package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

var (
	retryable = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	// broken covers failures that will not go away on retry but mean the endpoint
	// is unusable, so they still count against the breaker.
	broken = resilience.ErrorClassification{Retryable: false, RecordFailure: true}
)

func classifyOllamaError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return permanent
	}
	if resilience.IsCircuitOpen(err) {
		return retryable
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case isRetryableHTTPStatus(statusErr.StatusCode):
			return retryable
		case statusErr.StatusCode == http.StatusNotFound:
			// model not pulled on this endpoint
			return broken
		default:
			return permanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retryable
	}
	return broken
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
