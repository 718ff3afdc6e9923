package api

import (
	"net/http"
)

type setCollaboratorRequest struct {
	Permission string `json:"permission"`
}

func (s *Server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	collabs, err := s.svc.Repos.ListCollaborators(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, collabs)
}

func (s *Server) handleSetCollaborator(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req setCollaboratorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	collab, err := s.svc.Repos.SetCollaborator(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("username"), req.Permission)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, collab)
}

func (s *Server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.RemoveCollaborator(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
