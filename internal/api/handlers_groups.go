package api

import (
	"net/http"

	"github.com/lox/stationgroups/internal/httputil"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.orch.Groups(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	loc, err := decodeCreate(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	g, err := s.orch.CreateGroup(r.Context(), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.orch.Group(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	result, err := s.orch.DeleteGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleGroupStations(w http.ResponseWriter, r *http.Request) {
	members, err := s.orch.GroupStations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, members)
}

func (s *Server) handleAddStationToGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.orch.AddStationToGroup(r.Context(), r.PathValue("id"), r.PathValue("stationId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (s *Server) handleRemoveStationFromGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.orch.RemoveStationFromGroup(r.Context(), r.PathValue("id"), r.PathValue("stationId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, g)
}

func (s *Server) handleGroupMeasurements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	date, err := parseDate(r, s.orch.Today())
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if _, err := s.orch.Group(r.Context(), id); err != nil {
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
