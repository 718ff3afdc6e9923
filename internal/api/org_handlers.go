package api

import (
	"errors"
	"net/http"

	"github.com/odvcencio/codehub/internal/service"
)

type setOrgMemberRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.OrgInput
	if !decodeJSON(w, r, &req) {
		return
	}
	org, err := s.svc.Orgs.Create(r.Context(), actor, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, org)
}

func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	org, err := s.svc.Orgs.Get(r.Context(), r.PathValue("org"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, org)
}

func (s *Server) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.OrgUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	org, err := s.svc.Orgs.Update(r.Context(), actor, r.PathValue("org"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, org)
}

func (s *Server) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Orgs.Delete(r.Context(), actor, r.PathValue("org")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOrgMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Orgs.Members(r.Context(), r.PathValue("org"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, members)
}

// handleSetOrgMember adds the user, or changes the role of an existing member.
func (s *Server) handleSetOrgMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req setOrgMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	org, username := r.PathValue("org"), r.PathValue("username")
	member, err := s.svc.Orgs.AddMember(r.Context(), actor, org, username, req.Role)
	if err == nil {
		jsonResponse(w, http.StatusCreated, member)
		return
	}
	if !errors.Is(err, service.ErrDuplicate) {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.Orgs.UpdateMemberRole(r.Context(), actor, org, username, req.Role); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveOrgMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Orgs.RemoveMember(r.Context(), actor, r.PathValue("org"), r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOrgRepos(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	repos, err := s.svc.Orgs.Repositories(r.Context(), r.PathValue("org"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repos)
}
