package api

import (
	"net/http"
	"strings"

	"github.com/odvcencio/codehub/internal/models"
	"github.com/odvcencio/codehub/internal/service"
)

type updatePRRequest struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Draft  *bool   `json:"draft"`
	Locked *bool   `json:"locked"`
	State  *string `json:"state"` // only "closed" is a transition; merged and closed are terminal
}

func (s *Server) handleCreatePR(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.PullInput
	if !decodeJSON(w, r, &req) {
		return
	}
	pr, err := s.svc.Pulls.Create(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, pr)
}

func (s *Server) handleListPRs(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	prs, err := s.svc.Pulls.List(r.Context(), r.PathValue("owner"), r.PathValue("repo"), queryState(r), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, prs)
}

func (s *Server) handleGetPR(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	pr, err := s.svc.Pulls.Get(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, pr)
}

func (s *Server) handleUpdatePR(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req updatePRRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, name := r.PathValue("owner"), r.PathValue("repo")

	var (
		pr  *models.PullRequest
		err error
	)
	if req.Title != nil || req.Body != nil || req.Draft != nil || req.Locked != nil {
		pr, err = s.svc.Pulls.Edit(r.Context(), actor, owner, name, number, service.PullUpdate{
			Title:  req.Title,
			Body:   req.Body,
			Draft:  req.Draft,
			Locked: req.Locked,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.State != nil {
		switch strings.ToLower(strings.TrimSpace(*req.State)) {
		case models.PullRequestStateClosed:
			pr, err = s.svc.Pulls.Close(r.Context(), actor, owner, name, number)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
		case models.PullRequestStateOpen:
			if pr == nil {
				if pr, err = s.svc.Pulls.Get(r.Context(), owner, name, number, actor); err != nil {
					s.writeError(w, r, err)
					return
				}
			}
			if pr.State != models.PullRequestStateOpen {
				jsonError(w, "pull request is "+pr.State+" and cannot be reopened", http.StatusConflict)
				return
			}
		default:
			jsonError(w, "state must be open or closed", http.StatusBadRequest)
			return
		}
	}
	if pr == nil {
		pr, err = s.svc.Pulls.Get(r.Context(), owner, name, number, actor)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	jsonResponse(w, http.StatusOK, pr)
}

func (s *Server) handleMergePR(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req service.MergeInput
	if !decodeJSON(w, r, &req) {
		return
	}
	pr, err := s.svc.Pulls.Merge(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, pr)
}

// --- Comments ---

func (s *Server) handleCreatePRComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.svc.Pulls.Comment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, comment)
}

func (s *Server) handleListPRComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	comments, err := s.svc.Pulls.ListComments(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, comments)
}

func (s *Server) handleEditPRComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "comment id")
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.svc.Pulls.EditComment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, comment)
}

func (s *Server) handleDeletePRComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "comment id")
	if !ok {
		return
	}
	if err := s.svc.Pulls.DeleteComment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Reviewers, assignees and labels ---

func (s *Server) handleListPRReviewers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	users, err := s.svc.Pulls.ListReviewers(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleRequestPRReviewers(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req usernamesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	users, err := s.svc.Pulls.RequestReviewers(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Reviewers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, users)
}

func (s *Server) handleRemovePRReviewer(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	if err := s.svc.Pulls.RemoveReviewer(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPRAssignees(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	users, err := s.svc.Pulls.ListAssignees(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleAddPRAssignees(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req usernamesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	users, err := s.svc.Pulls.AddAssignees(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Assignees)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleRemovePRAssignee(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	if err := s.svc.Pulls.RemoveAssignee(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPRLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	labels, err := s.svc.Pulls.ListLabels(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, labels)
}

func (s *Server) handleAddPRLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	var req labelsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	labels, err := s.svc.Pulls.AddLabels(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Labels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, labels)
}

func (s *Server) handleRemovePRLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "pull request number")
	if !ok {
		return
	}
	if err := s.svc.Pulls.RemoveLabel(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
