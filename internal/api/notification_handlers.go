package api

import (
	"net/http"
)

type setNotificationRequest struct {
	Unread bool `json:"unread"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	unreadOnly, ok := parseOptionalQueryBool(w, r, "unread", false)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	notifications, err := s.svc.Notifications.List(r.Context(), actor, unreadOnly, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, notifications)
}

func (s *Server) handleCountUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	n, err := s.svc.Notifications.CountUnread(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) handleSetNotificationUnread(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "notification id")
	if !ok {
		return
	}
	var req setNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.svc.Notifications.SetUnread(r.Context(), actor, id, req.Unread); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	n, err := s.svc.Notifications.MarkAllRead(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int64{"marked": n})
}
