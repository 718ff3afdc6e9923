package api

import (
	"net/http"

	"github.com/odvcencio/codehub/internal/service"
)

type submitReviewRequest struct {
	Event string `json:"event"`
	Body  string `json:"body"`
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	reviews, err := s.svc.Pulls.ListReviews(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, reviews)
}

// handleCreateReview opens a review; an empty event leaves it pending.
func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req service.ReviewInput
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := s.svc.Pulls.CreateReview(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, review)
}

func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "review id")
	if !ok {
		return
	}
	var req submitReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := s.svc.Pulls.SubmitReview(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, id, req.Event, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, review)
}

func (s *Server) handleDismissReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "review id")
	if !ok {
		return
	}
	review, err := s.svc.Pulls.DismissReview(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, review)
}

func (s *Server) handleCreateReviewComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "review id")
	if !ok {
		return
	}
	var req service.ReviewCommentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.svc.Pulls.AddReviewComment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, id, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, comment)
}

func (s *Server) handleListReviewComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	comments, err := s.svc.Pulls.ListReviewComments(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, comments)
}

func (s *Server) handleListReviewThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "comment id")
	if !ok {
		return
	}
	thread, err := s.svc.Pulls.ListReviewThread(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, thread)
}
