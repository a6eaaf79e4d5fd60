package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/kirillkom/medical-portal/internal/config"
	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/ports"
	"github.com/kirillkom/medical-portal/internal/observability/metrics"
)

const serviceName = "api"

// Dependencies are the inbound use cases and collaborators the HTTP surface talks to.
type Dependencies struct {
	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Presence   ports.PresenceReader
	Stats      ports.StatsReader
	Roles      ports.RoleManager
	Identities ports.IdentityResolver
	Sessions   ports.SessionStore
	Metrics    *metrics.HTTPServerMetrics
	Logger     *slog.Logger
}

type Router struct {
	ingestor   ports.DocumentIngestor
	documents  ports.DocumentReader
	presence   ports.PresenceReader
	stats      ports.StatsReader
	roles      ports.RoleManager
	identities ports.IdentityResolver
	sessions   ports.SessionStore
	metrics    *metrics.HTTPServerMetrics
	logger     *slog.Logger

	maxUploadBytes   int64
	limiter          *rate.Limiter
	maxInFlight      int
	backpressureWait time.Duration
	now              func() time.Time
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.APIRateLimitRPS > 0 {
		burst := cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), burst)
	}

	maxUpload := cfg.MaxReferenceUploadBytes()
	if patient := cfg.MaxPatientUploadBytes(); patient > maxUpload {
		maxUpload = patient
	}

	return &Router{
		ingestor:         deps.Ingestor,
		documents:        deps.Documents,
		presence:         deps.Presence,
		stats:            deps.Stats,
		roles:            deps.Roles,
		identities:       deps.Identities,
		sessions:         deps.Sessions,
		metrics:          deps.Metrics,
		logger:           logger,
		maxUploadBytes:   maxUpload,
		limiter:          limiter,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		now:              time.Now,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware(serviceName))
	}

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.limiter, func() { rt.recordRejected("rate_limited") })
		})
		api.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.maxInFlight, rt.backpressureWait)
		})
		api.Use(rt.authMiddleware)

		api.Get("/auth/user", rt.currentUser)
		api.Post("/documents/upload", rt.uploadDocument)
		api.Get("/documents/detail/{id}", rt.getDocument)
		api.Get("/documents/{type}", rt.listDocuments)
		api.Get("/dashboard/stats", rt.dashboardStats)
		api.Get("/sessions/active", rt.activeSessions)
		api.Patch("/users/{id}/role", rt.changeRole)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	var denied *authz.DeniedError
	if errors.As(err, &denied) && rt.metrics != nil {
		rt.metrics.RecordDenied(serviceName, string(denied.Operation), string(denied.Reason))
	}
	writeJSON(w, status, errorBody(status, err))
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
