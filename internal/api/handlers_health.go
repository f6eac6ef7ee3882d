package api

import (
	"net/http"
	"time"

	"github.com/lox/stationgroups/internal/httputil"
	"github.com/lox/stationgroups/internal/store"
)

type HealthStatus struct {
	Status           string `json:"status"`
	MigrationVersion int    `json:"migrationVersion"`
	Error            string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("database ping failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthStatus{Status: "error", Error: err.Error()})
		return
	}
	version, err := s.store.MigrationVersion()
	if err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthStatus{Status: "error", Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthStatus{Status: "ok", MigrationVersion: version})
}

type OperationError struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Operation string    `json:"operation"`
	EntityID  string    `json:"entityId,omitempty"`
	Error     string    `json:"error"`
}

type OperationsReport struct {
	Window       string                         `json:"window"`
	Operations   []store.OperationHealthSummary `json:"operations"`
	RecentErrors []OperationError               `json:"recentErrors"`
}

// handleOperations reports the operation journal for the last 24 hours.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	const window = 24 * time.Hour

	health, err := s.store.GetOperationHealth(r.Context(), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, err := s.store.GetRecentOperationErrors(r.Context(), 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report := OperationsReport{
		Window:       window.String(),
		Operations:   health,
		RecentErrors: make([]OperationError, 0, len(runs)),
	}
	for _, run := range runs {
		report.RecentErrors = append(report.RecentErrors, OperationError{
			ID:        run.ID,
			StartedAt: run.StartedAt,
			Operation: run.Operation,
			EntityID:  run.EntityID.String,
			Error:     run.ErrorMessage.String,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
