package api

import (
	"errors"
	"net/http"

	"github.com/lox/stationgroups/internal/httputil"
	"github.com/lox/stationgroups/internal/models"
)

type createRequest struct {
	Location *models.Location `json:"location"`
}

func decodeCreate(r *http.Request) (models.Location, error) {
	var req createRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return models.Location{}, err
	}
	if req.Location == nil {
		return models.Location{}, errors.New("location is required")
	}
	return *req.Location, nil
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.orch.UngroupedStations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stations)
}

func (s *Server) handleCreateStation(w http.ResponseWriter, r *http.Request) {
	loc, err := decodeCreate(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	st, err := s.orch.CreateStation(r.Context(), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	day, err := s.orch.Station(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, day)
}

func (s *Server) handleDeleteStation(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.DeleteStation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleStationMeasurements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	date, err := parseDate(r, s.orch.Today())
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if _, err := s.orch.FindStation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	measurements, err := s.orch.MeasurementsForDay(r.Context(), id, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, measurements)
}

func (s *Server) handleRecordMeasurement(w http.ResponseWriter, r *http.Request) {
	var reading models.Reading
	if err := httputil.DecodeJSON(r, &reading); err != nil {
		s.badRequest(w, err)
		return
	}
	st, err := s.orch.RecordMeasurement(r.Context(), r.PathValue("id"), reading)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}
