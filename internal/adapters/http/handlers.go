package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// currentUser returns the resolved identity and records the caller's activity.
func (rt *Router) currentUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	if rt.sessions != nil {
		session := domain.Session{
			ID:         sessionID(r, identity),
			UserID:     identity.UserID,
			Role:       identity.Role,
			Location:   strings.TrimSpace(r.Header.Get(locationHeader)),
			LastSeenAt: rt.now().UTC(),
		}
		if err := rt.sessions.Touch(r.Context(), session); err != nil {
			rt.logger.Warn("session_touch_failed", "user_id", identity.UserID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, identity)
}

func sessionID(r *http.Request, identity domain.Identity) string {
	if id := strings.TrimSpace(r.Header.Get(sessionIDHeader)); id != "" {
		return id
	}
	return "user:" + identity.UserID
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordUpload("", "too_large", 0)
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload exceeds the maximum size"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart form is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	docType := domain.DocumentType(strings.TrimSpace(r.FormValue("type")))
	patientID := strings.TrimSpace(r.FormValue("patientId"))

	doc, err := rt.ingestor.Upload(r.Context(), identity, ports.UploadRequest{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Body:     file,
	}, docType, patientID)
	if err != nil {
		rt.recordUpload(string(docType), uploadOutcome(err), 0)
		rt.writeError(w, r, err)
		return
	}

	rt.recordUpload(string(docType), "accepted", doc.Size)
	writeJSON(w, http.StatusAccepted, doc)
}

func uploadOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return "too_large"
	case domain.IsKind(err, domain.ErrForbidden):
		return "forbidden"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid"
	default:
		return "failed"
	}
}

func (rt *Router) recordUpload(docType, outcome string, size int64) {
	if rt.metrics == nil {
		return
	}
	if !domain.DocumentType(docType).Valid() {
		docType = "unknown"
	}
	rt.metrics.RecordUpload(serviceName, docType, outcome, size)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	docType := domain.DocumentType(chi.URLParam(r, "type"))

	docs, err := rt.documents.ListByType(r.Context(), identity, docType)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	doc, err := rt.documents.GetByID(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) dashboardStats(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	stats, err := rt.stats.Compute(r.Context(), identity)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type sessionResponse struct {
	domain.Session
	LastSeen string `json:"last_seen"`
}

func (rt *Router) activeSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	sessions, err := rt.presence.ListActive(r.Context(), identity)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	now := rt.now()
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{Session: s, LastSeen: domain.FormatLastSeen(now, s.LastSeenAt)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) changeRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	userID := chi.URLParam(r, "id")
	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if err := rt.roles.ChangeRole(r.Context(), identity, userID, role); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "role": string(role)})
}
