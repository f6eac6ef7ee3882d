package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/stationgroups/internal/orchestrator"
	"github.com/lox/stationgroups/internal/store"
)

type Server struct {
	orch  *orchestrator.Orchestrator
	store *store.Store
	addr  string
	log   *slog.Logger
}

func NewServer(orch *orchestrator.Orchestrator, store *store.Store, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		orch:  orch,
		store: store,
		addr:  addr,
		log:   log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /operations", s.handleOperations)

	mux.HandleFunc("GET /stations", s.handleListStations)
	mux.HandleFunc("POST /stations", s.handleCreateStation)
	mux.HandleFunc("GET /stations/{id}", s.handleGetStation)
	mux.HandleFunc("DELETE /stations/{id}", s.handleDeleteStation)
	mux.HandleFunc("GET /stations/{id}/measurements", s.handleStationMeasurements)
	mux.HandleFunc("PATCH /stations/{id}/measurements", s.handleRecordMeasurement)

	mux.HandleFunc("GET /station-groups", s.handleListGroups)
	mux.HandleFunc("POST /station-groups", s.handleCreateGroup)
	mux.HandleFunc("GET /station-groups/{id}", s.handleGetGroup)
	mux.HandleFunc("DELETE /station-groups/{id}", s.handleDeleteGroup)
	mux.HandleFunc("GET /station-groups/{id}/stations", s.handleGroupStations)
	mux.HandleFunc("PATCH /station-groups/{id}/stations/{stationId}", s.handleAddStationToGroup)
	mux.HandleFunc("DELETE /station-groups/{id}/stations/{stationId}", s.handleRemoveStationFromGroup)
	mux.HandleFunc("GET /station-groups/{id}/measurements", s.handleGroupMeasurements)

	return s.requestLogger(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("http server listening", "addr", s.addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
