package api

import (
	"net/http"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleListRepoLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	labels, err := s.svc.Labels.List(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, labels)
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.LabelInput
	if !decodeJSON(w, r, &req) {
		return
	}
	label, err := s.svc.Labels.Create(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, label)
}

func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	label, err := s.svc.Labels.Get(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("name"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, label)
}

func (s *Server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.LabelInput
	if !decodeJSON(w, r, &req) {
		return
	}
	label, err := s.svc.Labels.Update(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("name"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, label)
}

func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Labels.Delete(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
