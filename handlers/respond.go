package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"jobportal/auth"
	"jobportal/experiments"
	"jobportal/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps service errors onto responses. Unexpected errors are logged and
// reported as "internal error" so that their details never reach the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeJSON(w, http.StatusOK, errorBody("must be logged in"))
	case errors.Is(err, experiments.ErrQuotaExceeded),
		errors.Is(err, experiments.ErrFileTooLarge),
		errors.Is(err, experiments.ErrInvalidFilename):
		writeJSON(w, http.StatusOK, errorBody(err.Error()))
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeJSON(w, http.StatusOK, errorBody("email already registered"))
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, experiments.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, experiments.ErrNotFound),
		errors.Is(err, experiments.ErrOwnerMismatch),
		errors.Is(err, auth.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, experiments.ErrInvalidTransition),
		errors.Is(err, auth.ErrDuplicateGroup):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		logger.Error("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
