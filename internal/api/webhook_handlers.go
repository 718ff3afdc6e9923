package api

import (
	"net/http"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	hooks, err := s.svc.Webhooks.List(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, hooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.WebhookInput
	if !decodeJSON(w, r, &req) {
		return
	}
	hook, err := s.svc.Webhooks.Create(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, hook)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "webhook id")
	if !ok {
		return
	}
	hook, err := s.svc.Webhooks.Get(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, hook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "webhook id")
	if !ok {
		return
	}
	var req service.WebhookInput
	if !decodeJSON(w, r, &req) {
		return
	}
	hook, err := s.svc.Webhooks.Update(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "webhook id")
	if !ok {
		return
	}
	if err := s.svc.Webhooks.Delete(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
