package api

import (
	"net/http"
)

type starStatusResponse struct {
	Starred bool `json:"starred"`
}

type watchStatusResponse struct {
	Watching bool `json:"watching"`
}

func (s *Server) handleListStargazers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	users, err := s.svc.Repos.Stargazers(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleIsStarred(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	starred, err := s.svc.Repos.IsStarred(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, starStatusResponse{Starred: starred})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.Star(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnstar(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.Unstar(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	starred, err := s.svc.Repos.ToggleStar(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, starStatusResponse{Starred: starred})
}

func (s *Server) handleListWatchers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	users, err := s.svc.Repos.Watchers(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.Watch(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.Unwatch(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleWatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	watching, err := s.svc.Repos.ToggleWatch(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, watchStatusResponse{Watching: watching})
}
