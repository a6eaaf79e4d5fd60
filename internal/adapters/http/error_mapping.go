package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// errorBody hides internal failures; client-caused errors keep their message.
func errorBody(status int, err error) errorResponse {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return errorResponse{Error: "internal error"}
	}
	resp := errorResponse{Error: err.Error()}
	var denied *authz.DeniedError
	if errors.As(err, &denied) {
		resp.Error = "forbidden"
		resp.Reason = string(denied.Reason)
	}
	return resp
}
