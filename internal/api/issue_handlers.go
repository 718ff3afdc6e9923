package api

import (
	"net/http"
	"strings"

	"github.com/odvcencio/codehub/internal/models"
	"github.com/odvcencio/codehub/internal/service"
)

type updateIssueRequest struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Locked *bool   `json:"locked"`
	State  *string `json:"state"` // "open"|"closed"
}

type commentRequest struct {
	Body string `json:"body"`
}

type usernamesRequest struct {
	Assignees []string `json:"assignees"`
	Reviewers []string `json:"reviewers"`
}

type labelsRequest struct {
	Labels []string `json:"labels"`
}

func queryState(r *http.Request) string {
	return strings.TrimSpace(strings.ToLower(r.URL.Query().Get("state")))
}

func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.IssueInput
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := s.svc.Issues.Create(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, issue)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	issues, err := s.svc.Issues.List(r.Context(), r.PathValue("owner"), r.PathValue("repo"), queryState(r), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, issues)
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	issue, err := s.svc.Issues.Get(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, issue)
}

// handleUpdateIssue applies field edits first, then any state transition.
func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	var req updateIssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, name := r.PathValue("owner"), r.PathValue("repo")

	var (
		issue *models.Issue
		err   error
	)
	if req.Title != nil || req.Body != nil || req.Locked != nil {
		issue, err = s.svc.Issues.Edit(r.Context(), actor, owner, name, number, service.IssueUpdate{
			Title:  req.Title,
			Body:   req.Body,
			Locked: req.Locked,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.State != nil {
		switch strings.ToLower(strings.TrimSpace(*req.State)) {
		case models.IssueStateClosed:
			issue, err = s.svc.Issues.Close(r.Context(), actor, owner, name, number)
		case models.IssueStateOpen:
			issue, err = s.svc.Issues.Reopen(r.Context(), actor, owner, name, number)
		default:
			jsonError(w, "state must be open or closed", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if issue == nil {
		issue, err = s.svc.Issues.Get(r.Context(), owner, name, number, actor)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	jsonResponse(w, http.StatusOK, issue)
}

// --- Comments ---

func (s *Server) handleCreateIssueComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := s.svc.Issues.Comment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, comment)
}

func (s *Server) handleListIssueComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	comments, err := s.svc.Issues.ListComments(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, comments)
}

func (s *Server) handleEditIssueComment(w http.ResponseWriter, r *http.Request) {
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
	comment, err := s.svc.Issues.EditComment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, comment)
}

func (s *Server) handleDeleteIssueComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := parsePathPositiveInt64(w, r, "id", "comment id")
	if !ok {
		return
	}
	if err := s.svc.Issues.DeleteComment(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Assignees ---

func (s *Server) handleListIssueAssignees(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	users, err := s.svc.Issues.ListAssignees(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleAddIssueAssignees(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	var req usernamesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	users, err := s.svc.Issues.AddAssignees(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Assignees)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

func (s *Server) handleRemoveIssueAssignee(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	if err := s.svc.Issues.RemoveAssignee(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, r.PathValue("username")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Labels ---

func (s *Server) handleListIssueLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	labels, err := s.svc.Issues.ListLabels(r.Context(), r.PathValue("owner"), r.PathValue("repo"), number, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, labels)
}

func (s *Server) handleAddIssueLabels(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	var req labelsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	labels, err := s.svc.Issues.AddLabels(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, req.Labels)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, labels)
}

func (s *Server) handleRemoveIssueLabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	number, ok := parsePathPositiveInt(w, r, "number", "issue number")
	if !ok {
		return
	}
	if err := s.svc.Issues.RemoveLabel(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), number, r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
