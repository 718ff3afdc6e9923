package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)
	users, err := s.svc.Users.List(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Users.Get(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.svc.Users.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// --- Follows ---

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Users.Follow(r.Context(), actor, r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Users.Unfollow(r.Context(), actor, r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckFollowing(w http.ResponseWriter, r *http.Request) {
	following, err := s.svc.Users.IsFollowing(r.Context(), r.PathValue("username"), r.PathValue("target"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !following {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)
	users, err := s.svc.Users.Followers(r.Context(), r.PathValue("username"), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleListFollowing(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)
	users, err := s.svc.Users.Following(r.Context(), r.PathValue("username"), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// --- SSH keys ---

type createSSHKeyRequest struct {
	Title     string `json:"title"`
	PublicKey string `json:"public_key"`
}

func (s *Server) handleListSSHKeys(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	keys, err := s.svc.Users.ListSSHKeys(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, keys)
}

func (s *Server) handleCreateSSHKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req createSSHKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := s.svc.Users.AddSSHKey(r.Context(), actor, req.Title, req.PublicKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, key)
}

func (s *Server) handleDeleteSSHKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "key id")
	if !ok {
		return
	}
	if err := s.svc.Users.DeleteSSHKey(r.Context(), actor, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Access tokens ---

type createAccessTokenRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expires_in"` // Go duration, empty for no expiry
}

func (s *Server) handleListAccessTokens(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	toks, err := s.svc.Users.ListAccessTokens(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, toks)
}

func (s *Server) handleCreateAccessToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req createAccessTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var ttl time.Duration
	if raw := strings.TrimSpace(req.ExpiresIn); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			jsonError(w, "invalid expires_in", http.StatusBadRequest)
			return
		}
		ttl = d
	}
	plain, tok, err := s.svc.Users.CreateAccessToken(r.Context(), actor, req.Name, req.Scopes, ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, map[string]any{"token": plain, "access_token": tok})
}

func (s *Server) handleDeleteAccessToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "token id")
	if !ok {
		return
	}
	if err := s.svc.Users.DeleteAccessToken(r.Context(), actor, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCurrentUserRepos(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	repos, err := s.svc.Repos.ListForOwner(r.Context(), actor.Username, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repos)
}

func (s *Server) handleListCurrentUserOrgs(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	orgs, err := s.svc.Orgs.ListForUser(r.Context(), actor.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orgs)
}

func (s *Server) handleListOwnerRepos(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	repos, err := s.svc.Repos.ListForOwner(r.Context(), r.PathValue("username"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repos)
}

func (s *Server) handleListStarred(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	repos, err := s.svc.Repos.Starred(r.Context(), r.PathValue("username"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repos)
}

func (s *Server) handleListUserOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.svc.Orgs.ListForUser(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, orgs)
}
