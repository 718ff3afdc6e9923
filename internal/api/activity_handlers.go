package api

import "net/http"

func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	events, err := s.svc.Activity.UserFeed(r.Context(), r.PathValue("username"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

func (s *Server) handleRepoEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	events, err := s.svc.Activity.RepositoryFeed(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

// handleDashboard lists the caller's own events and those of users they follow.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	events, err := s.svc.Activity.Dashboard(r.Context(), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}
