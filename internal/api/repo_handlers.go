package api

import (
	"net/http"
	"strings"

	"github.com/odvcencio/codehub/internal/service"
)

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.CreateRepoInput
	if !decodeJSON(w, r, &req) {
		return
	}
	repo, err := s.svc.Repos.Create(r.Context(), actor, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, repo)
}

func (s *Server) handleListPublicRepos(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)
	repos, err := s.svc.Repos.ListPublic(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repos)
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	repo, err := s.svc.Repos.Get(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repo)
}

func (s *Server) handleUpdateRepo(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.RepoUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	repo, err := s.svc.Repos.Update(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.Delete(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type topicsRequest struct {
	Names []string `json:"names"`
}

func (s *Server) handleSetTopics(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req topicsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	topics, err := s.svc.Repos.SetTopics(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req.Names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, topicsRequest{Names: topics})
}

func (s *Server) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	perm, err := s.svc.Repos.Permission(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"permission": perm})
}

func (s *Server) handleForkRepo(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.ForkInput
	if !decodeJSON(w, r, &req) {
		return
	}
	fork, err := s.svc.Repos.Fork(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, fork)
}

func (s *Server) handleListForks(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	forks, err := s.svc.Repos.ListForks(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, forks)
}

// --- Branches ---

type createBranchRequest struct {
	Name string `json:"name"`
	From string `json:"from"`
	SHA  string `json:"sha"`
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	branches, err := s.svc.Repos.ListBranches(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, branches)
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req createBranchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	branch, err := s.svc.Repos.CreateBranch(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req.Name, req.From, req.SHA)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, branch)
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	branch, err := s.svc.Repos.GetBranch(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("branch"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, branch)
}

func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	if err := s.svc.Repos.DeleteBranch(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), r.PathValue("branch")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Commits and files ---

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var req service.PushInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.svc.Repos.Push(r.Context(), actor, r.PathValue("owner"), r.PathValue("repo"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleListCommits(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	page, perPage := parsePagination(r)
	commits, err := s.svc.Repos.ListCommits(r.Context(), r.PathValue("owner"), r.PathValue("repo"), actor, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, commits)
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	commit, err := s.svc.Repos.GetCommit(r.Context(), r.PathValue("owner"), r.PathValue("repo"), strings.ToLower(r.PathValue("sha")), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, commit)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	files, err := s.svc.Repos.ListFiles(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.PathValue("ref"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, files)
}

// handleGetFile reads file metadata; ?ref= selects the branch, defaulting to the repository's default.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	file, err := s.svc.Repos.GetFile(r.Context(), r.PathValue("owner"), r.PathValue("repo"), r.URL.Query().Get("ref"), r.PathValue("path"), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, file)
}
