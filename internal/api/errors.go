package api

import (
	"errors"
	"net/http"

	"github.com/lox/stationgroups/internal/httputil"
	"github.com/lox/stationgroups/internal/models"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidMeasurement):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	httputil.WriteError(w, status, err)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	httputil.WriteError(w, http.StatusBadRequest, err)
}
