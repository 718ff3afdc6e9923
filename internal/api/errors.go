package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/service"
)

// writeError maps a service error onto a status code. Unclassified errors are
// logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotVisible):
		jsonError(w, "repository not found", http.StatusNotFound)
	case errors.Is(err, service.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicate):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidState):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrForbidden):
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrValidation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials):
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		jsonError(w, err.Error(), http.StatusUnauthorized)
	default:
		slog.Error("request failed", "request_id", requestID(r.Context()), "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
