package httpadapter

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

const (
	requestIDHeader = "X-Request-Id"
	sessionIDHeader = "X-Session-Id"
	locationHeader  = "X-Client-Location"
)

type requestIDContextKey struct{}

type identityContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(recorder, r)

			remoteAddr := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				remoteAddr = host
			}

			logAttrs := []any{
				"request_id", requestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"bytes", recorder.bytesWritten,
				"remote_addr", remoteAddr,
				"user_agent", r.UserAgent(),
			}

			switch {
			case recorder.statusCode >= 500:
				logger.Error("http_request", logAttrs...)
			case recorder.statusCode >= 400:
				logger.Warn("http_request", logAttrs...)
			default:
				logger.Info("http_request", logAttrs...)
			}
		})
	}
}

// rateLimitMiddleware applies one shared token bucket to the API surface.
func rateLimitMiddleware(next http.Handler, limiter *rate.Limiter, onReject func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		reservation := limiter.Reserve()
		if !reservation.OK() {
			rejectRateLimited(w, time.Second, onReject)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			rejectRateLimited(w, delay, onReject)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectRateLimited(w http.ResponseWriter, retryAfter time.Duration, onReject func()) {
	if onReject != nil {
		onReject()
	}
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
}

// backpressureMiddleware caps concurrent requests. A request waits up to wait for
// a free slot and is rejected with 503 otherwise.
func backpressureMiddleware(next http.Handler, maxInFlight int, wait time.Duration) http.Handler {
	if maxInFlight <= 0 {
		return next
	}
	slots := make(chan struct{}, maxInFlight)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
		case <-timer.C:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is overloaded, retry later"})
			return
		case <-r.Context().Done():
			return
		}
		defer func() { <-slots }()

		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

// authMiddleware resolves the bearer token and stores the identity in the request
// context. Handlers pass the identity explicitly into the use cases.
func (rt *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		identity, err := rt.identities.Resolve(r.Context(), token)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	parts := strings.SplitN(headerValue, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}
