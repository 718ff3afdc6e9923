package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
	"github.com/odvcencio/codehub/internal/storage"
)

var (
	validRepoName   = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
	validTopic      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,49}$`)
	validBranchName = regexp.MustCompile(`^[A-Za-z0-9._/-]{1,255}$`)
	validSHA        = regexp.MustCompile(`^[0-9a-f]{40}([0-9a-f]{24})?$`)
)

const maxTopics = 20

type RepoService struct {
	db       database.DB
	access   *AccessService
	activity *ActivityService
	blobs    storage.Backend
}

func NewRepoService(db database.DB, access *AccessService, activity *ActivityService, blobs storage.Backend) *RepoService {
	return &RepoService{db: db, access: access, activity: activity, blobs: blobs}
}

func validateRepoName(name string) error {
	if !validRepoName.MatchString(name) || name == "." || name == ".." || strings.HasSuffix(strings.ToLower(name), ".git") {
		return invalid("invalid repository name %q", name)
	}
	return nil
}

func normalizeTopics(topics []string) ([]string, error) {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		if !validTopic.MatchString(t) {
			return nil, invalid("invalid topic %q", t)
		}
		out = append(out, t)
	}
	if len(out) > maxTopics {
		return nil, invalid("at most %d topics are allowed", maxTopics)
	}
	return out, nil
}

// CreateRepoInput describes a new repository. Org, when set, scopes it to that organization.
type CreateRepoInput struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Private       bool     `json:"private"`
	Org           string   `json:"org"`
	DefaultBranch string   `json:"default_branch"`
	Homepage      string   `json:"homepage"`
	Language      string   `json:"language"`
	Topics        []string `json:"topics"`
}

func (s *RepoService) Create(ctx context.Context, actor *Actor, in CreateRepoInput) (*models.Repository, error) {
	if !actor.authenticated() {
		return nil, forbidden("creating a repository requires authentication")
	}
	name := strings.TrimSpace(in.Name)
	if err := validateRepoName(name); err != nil {
		return nil, err
	}
	topics, err := normalizeTopics(in.Topics)
	if err != nil {
		return nil, err
	}
	branch := strings.TrimSpace(in.DefaultBranch)
	if branch == "" {
		branch = "main"
	}
	if !validBranchName.MatchString(branch) {
		return nil, invalid("invalid default branch %q", branch)
	}
	repo := &models.Repository{
		OwnerID:       actor.ID,
		OwnerName:     actor.Username,
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		IsPrivate:     in.Private,
		DefaultBranch: branch,
		Homepage:      strings.TrimSpace(in.Homepage),
		Language:      strings.TrimSpace(in.Language),
		Topics:        topics,
		HasIssues:     true,
	}
	if org := strings.TrimSpace(in.Org); org != "" {
		o, err := s.orgForCreate(ctx, actor, org)
		if err != nil {
			return nil, err
		}
		repo.OrgID = &o.ID
		repo.OwnerName = o.Name
	}
	if err := s.db.CreateRepository(ctx, repo); err != nil {
		return nil, mapDBErr(err, "repository "+repo.OwnerName+"/"+name)
	}
	s.activity.Record(ctx, actor, models.EventCreate, repo, map[string]any{"ref_type": "repository"})
	return repo, nil
}

// orgForCreate requires the actor to be an owner or admin of org.
func (s *RepoService) orgForCreate(ctx context.Context, actor *Actor, org string) (*models.Org, error) {
	o, err := s.db.GetOrg(ctx, org)
	if err != nil {
		return nil, mapDBErr(err, "organization "+org)
	}
	if actor.IsAdmin {
		return o, nil
	}
	m, err := s.db.GetOrgMember(ctx, o.ID, actor.ID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && m.Role == models.OrgRoleMember) {
		return nil, forbidden("create repositories in %s", org)
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *RepoService) Get(ctx context.Context, owner, name string, viewer *Actor) (*models.Repository, error) {
	return s.access.Repository(ctx, owner, name, viewer)
}

// ListForOwner lists the repositories of a user or organization visible to viewer.
func (s *RepoService) ListForOwner(ctx context.Context, owner string, viewer *Actor) ([]models.Repository, error) {
	user, err := s.db.GetUserByUsername(ctx, owner)
	if err == nil {
		includePrivate := viewer.authenticated() && (viewer.ID == user.ID || viewer.IsAdmin)
		repos, err := s.db.ListUserRepositories(ctx, user.ID, includePrivate)
		if err != nil {
			return nil, mapDBErr(err, "list repositories")
		}
		return s.visible(ctx, repos, viewer)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	org, err := s.db.GetOrg(ctx, owner)
	if err != nil {
		return nil, mapDBErr(err, "owner "+owner)
	}
	repos, err := s.db.ListOrgRepositories(ctx, org.ID, true)
	if err != nil {
		return nil, mapDBErr(err, "list repositories")
	}
	return s.visible(ctx, repos, viewer)
}

func (s *RepoService) visible(ctx context.Context, repos []models.Repository, viewer *Actor) ([]models.Repository, error) {
	out := repos[:0]
	for _, r := range repos {
		ok, err := s.access.CanView(ctx, &r, viewer)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RepoService) ListPublic(ctx context.Context, page, perPage int) ([]models.Repository, error) {
	limit, offset := normalizePage(page, perPage, 30, 100)
	repos, err := s.db.ListPublicRepositories(ctx, limit, offset)
	return repos, mapDBErr(err, "list repositories")
}

// RepoUpdate carries the settings to change; nil fields are left alone.
type RepoUpdate struct {
	Name          *string   `json:"name"`
	Description   *string   `json:"description"`
	Private       *bool     `json:"private"`
	DefaultBranch *string   `json:"default_branch"`
	Homepage      *string   `json:"homepage"`
	Language      *string   `json:"language"`
	Topics        *[]string `json:"topics"`
	HasIssues     *bool     `json:"has_issues"`
	Archived      *bool     `json:"archived"`
}

func (s *RepoService) Update(ctx context.Context, actor *Actor, owner, name string, in RepoUpdate) (*models.Repository, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionSettings); err != nil {
		return nil, err
	}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if err := validateRepoName(n); err != nil {
			return nil, err
		}
		repo.Name = n
	}
	if in.Description != nil {
		repo.Description = strings.TrimSpace(*in.Description)
	}
	if in.Private != nil {
		repo.IsPrivate = *in.Private
	}
	if in.DefaultBranch != nil {
		b := strings.TrimSpace(*in.DefaultBranch)
		if _, err := s.db.GetBranch(ctx, repo.ID, b); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, invalid("default branch %q does not exist", b)
			}
			return nil, err
		}
		repo.DefaultBranch = b
	}
	if in.Homepage != nil {
		repo.Homepage = strings.TrimSpace(*in.Homepage)
	}
	if in.Language != nil {
		repo.Language = strings.TrimSpace(*in.Language)
	}
	if in.Topics != nil {
		topics, err := normalizeTopics(*in.Topics)
		if err != nil {
			return nil, err
		}
		repo.Topics = topics
	}
	if in.HasIssues != nil {
		repo.HasIssues = *in.HasIssues
	}
	if in.Archived != nil {
		repo.Archived = *in.Archived
	}
	if err := s.db.UpdateRepository(ctx, repo); err != nil {
		return nil, mapDBErr(err, "repository "+repo.FullName())
	}
	return repo, nil
}

// SetTopics replaces the repository's topic list.
func (s *RepoService) SetTopics(ctx context.Context, actor *Actor, owner, name string, topics []string) ([]string, error) {
	if topics == nil {
		topics = []string{}
	}
	repo, err := s.Update(ctx, actor, owner, name, RepoUpdate{Topics: &topics})
	if err != nil {
		return nil, err
	}
	return repo.Topics, nil
}

// Delete removes the repository with everything it owns, then its asset blobs.
func (s *RepoService) Delete(ctx context.Context, actor *Actor, owner, name string) error {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionDelete); err != nil {
		return err
	}
	keys, err := s.db.ListRepositoryAssetKeys(ctx, repo.ID)
	if err != nil {
		return mapDBErr(err, "list release assets")
	}
	if err := s.db.DeleteRepository(ctx, repo.ID); err != nil {
		return mapDBErr(err, "repository "+repo.FullName())
	}
	if s.blobs != nil {
		for _, key := range keys {
			if err := s.blobs.Delete(ctx, key); err != nil {
				slog.Warn("delete release asset blob", "repo", repo.FullName(), "key", key, "error", err)
			}
		}
	}
	if !repo.IsPrivate {
		s.activity.Record(ctx, actor, models.EventDelete, nil, map[string]any{"ref_type": "repository", "repo": repo.FullName()})
	}
	return nil
}

// ForkInput names the fork; empty fields default to the parent's name and the actor's account.
type ForkInput struct {
	Name string `json:"name"`
	Org  string `json:"org"`
}

func (s *RepoService) Fork(ctx context.Context, actor *Actor, owner, name string, in ForkInput) (*models.Repository, error) {
	parent, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, parent, actor, ActionFork); err != nil {
		return nil, err
	}
	forkName := strings.TrimSpace(in.Name)
	if forkName == "" {
		forkName = parent.Name
	}
	if err := validateRepoName(forkName); err != nil {
		return nil, err
	}
	fork := &models.Repository{
		OwnerID:       actor.ID,
		OwnerName:     actor.Username,
		Name:          forkName,
		Description:   parent.Description,
		IsPrivate:     parent.IsPrivate,
		DefaultBranch: parent.DefaultBranch,
		Language:      parent.Language,
		Homepage:      parent.Homepage,
		Topics:        slices.Clone(parent.Topics),
		HasIssues:     false,
	}
	if org := strings.TrimSpace(in.Org); org != "" {
		o, err := s.orgForCreate(ctx, actor, org)
		if err != nil {
			return nil, err
		}
		fork.OrgID = &o.ID
		fork.OwnerName = o.Name
	}
	if fork.OwnerName == parent.OwnerName && fork.Name == parent.Name {
		return nil, invalid("cannot fork %s onto itself", parent.FullName())
	}
	if err := s.db.ForkRepository(ctx, parent.ID, fork); err != nil {
		return nil, mapDBErr(err, "fork "+fork.OwnerName+"/"+forkName)
	}
	s.activity.Record(ctx, actor, models.EventFork, parent, map[string]any{"fork": fork.OwnerName + "/" + fork.Name})
	return fork, nil
}

func (s *RepoService) ListForks(ctx context.Context, owner, name string, viewer *Actor) ([]models.Repository, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	forks, err := s.db.ListForks(ctx, repo.ID)
	if err != nil {
		return nil, mapDBErr(err, "list forks")
	}
	return s.visible(ctx, forks, viewer)
}

// --- Collaborators ---

func (s *RepoService) ListCollaborators(ctx context.Context, actor *Actor, owner, name string) ([]models.Collaborator, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	ok, err := s.access.CanMutate(ctx, repo, actor, ActionPush)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("list collaborators of %s", repo.FullName())
	}
	collabs, err := s.db.ListCollaborators(ctx, repo.ID)
	return collabs, mapDBErr(err, "list collaborators")
}

// SetCollaborator grants username permission on the repository, adding or updating the row.
func (s *RepoService) SetCollaborator(ctx context.Context, actor *Actor, owner, name, username, permission string) (*models.Collaborator, error) {
	if permission == "" {
		permission = models.PermissionWrite
	}
	if !models.IsPermission(permission) {
		return nil, invalid("invalid permission %q", permission)
	}
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionAdminister); err != nil {
		return nil, err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	if user.ID == repo.OwnerID {
		return nil, invalid("the owner cannot be a collaborator")
	}
	c := &models.Collaborator{RepoID: repo.ID, UserID: user.ID, Username: user.Username, Permission: permission}
	err = s.db.AddCollaborator(ctx, c)
	if errors.Is(err, database.ErrDuplicate) {
		err = s.db.SetCollaboratorPermission(ctx, repo.ID, user.ID, permission)
		if err == nil {
			return s.collaborator(ctx, repo.ID, user.ID)
		}
	}
	if err != nil {
		return nil, mapDBErr(err, "collaborator "+username)
	}
	return c, nil
}

func (s *RepoService) collaborator(ctx context.Context, repoID, userID int64) (*models.Collaborator, error) {
	c, err := s.db.GetCollaborator(ctx, repoID, userID)
	if err != nil {
		return nil, mapDBErr(err, "collaborator")
	}
	return c, nil
}

func (s *RepoService) RemoveCollaborator(ctx context.Context, actor *Actor, owner, name, username string) error {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return mapDBErr(err, "user "+username)
	}
	// Collaborators may leave on their own.
	if !actor.authenticated() || actor.ID != user.ID {
		if err := s.access.Authorize(ctx, repo, actor, ActionAdminister); err != nil {
			return err
		}
	}
	return mapDBErr(s.db.RemoveCollaborator(ctx, repo.ID, user.ID), "collaborator "+username)
}

// --- Branches, commits and files ---

func (s *RepoService) ListBranches(ctx context.Context, owner, name string, viewer *Actor) ([]models.Branch, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	branches, err := s.db.ListBranches(ctx, repo.ID)
	return branches, mapDBErr(err, "list branches")
}

func (s *RepoService) GetBranch(ctx context.Context, owner, name, branch string, viewer *Actor) (*models.Branch, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	b, err := s.db.GetBranch(ctx, repo.ID, branch)
	if err != nil {
		return nil, mapDBErr(err, "branch "+branch)
	}
	return b, nil
}

// CreateBranch starts branch at the head of from, or at sha when from is empty.
func (s *RepoService) CreateBranch(ctx context.Context, actor *Actor, owner, name, branch, from, sha string) (*models.Branch, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionBranch); err != nil {
		return nil, err
	}
	branch = strings.TrimSpace(branch)
	if !validBranchName.MatchString(branch) || strings.Contains(branch, "..") {
		return nil, invalid("invalid branch name %q", branch)
	}
	if from != "" {
		src, err := s.db.GetBranch(ctx, repo.ID, from)
		if err != nil {
			return nil, mapDBErr(err, "branch "+from)
		}
		sha = src.CommitSHA
	} else if sha != "" && !validSHA.MatchString(sha) {
		return nil, invalid("invalid commit sha %q", sha)
	}
	b := &models.Branch{RepoID: repo.ID, Name: branch, CommitSHA: sha}
	if err := s.db.CreateBranch(ctx, b); err != nil {
		return nil, mapDBErr(err, "branch "+branch)
	}
	s.activity.Record(ctx, actor, models.EventCreate, repo, map[string]any{"ref_type": "branch", "ref": branch})
	return b, nil
}

func (s *RepoService) DeleteBranch(ctx context.Context, actor *Actor, owner, name, branch string) error {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionBranch); err != nil {
		return err
	}
	if branch == repo.DefaultBranch {
		return invalidState("cannot delete the default branch %q", branch)
	}
	b, err := s.db.GetBranch(ctx, repo.ID, branch)
	if err != nil {
		return mapDBErr(err, "branch "+branch)
	}
	if b.Protected {
		return forbidden("branch %q is protected", branch)
	}
	if err := s.db.DeleteBranch(ctx, repo.ID, branch); err != nil {
		return mapDBErr(err, "branch "+branch)
	}
	s.activity.Record(ctx, actor, models.EventDelete, repo, map[string]any{"ref_type": "branch", "ref": branch})
	return nil
}

// CommitInput is one commit of a push, oldest first.
type CommitInput struct {
	SHA            string    `json:"sha"`
	Message        string    `json:"message"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	CommitterName  string    `json:"committer_name"`
	CommitterEmail string    `json:"committer_email"`
	ParentSHAs     []string  `json:"parent_shas"`
	TreeSHA        string    `json:"tree_sha"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	CommittedAt    time.Time `json:"committed_at"`
}

// FileInput is the metadata of one file touched by a push.
type FileInput struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	ContentType string `json:"content_type"`
	IsBinary    bool   `json:"is_binary"`
}

// PushInput records commits onto a branch along with the files they touched.
type PushInput struct {
	Branch  string        `json:"branch"`
	Commits []CommitInput `json:"commits"`
	Files   []FileInput   `json:"files"`
}

// PushResult reports the branch head after a push.
type PushResult struct {
	Branch  *models.Branch  `json:"branch"`
	Commits []models.Commit `json:"commits"`
	Files   []models.File   `json:"files"`
}

// Push records pushed commit metadata, moves (or creates) the branch head to the
// last commit, and upserts file entries on the branch. Commits already recorded
// in the repository are skipped.
func (s *RepoService) Push(ctx context.Context, actor *Actor, owner, name string, in PushInput) (*PushResult, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionPush); err != nil {
		return nil, err
	}
	branchName := strings.TrimSpace(in.Branch)
	if branchName == "" {
		branchName = repo.DefaultBranch
	}
	if !validBranchName.MatchString(branchName) {
		return nil, invalid("invalid branch name %q", branchName)
	}
	if len(in.Commits) == 0 {
		return nil, invalid("a push needs at least one commit")
	}
	for _, c := range in.Commits {
		if !validSHA.MatchString(c.SHA) {
			return nil, invalid("invalid commit sha %q", c.SHA)
		}
		for _, p := range c.ParentSHAs {
			if !validSHA.MatchString(p) {
				return nil, invalid("invalid parent sha %q", p)
			}
		}
	}
	for _, f := range in.Files {
		if p := path.Clean(strings.TrimPrefix(f.Path, "/")); p == "." || strings.HasPrefix(p, "../") || p == ".." {
			return nil, invalid("invalid file path %q", f.Path)
		}
	}

	result := &PushResult{}
	var head *models.Commit
	for _, in := range in.Commits {
		c := &models.Commit{
			RepoID:         repo.ID,
			SHA:            in.SHA,
			AuthorName:     in.AuthorName,
			AuthorEmail:    in.AuthorEmail,
			CommitterName:  in.CommitterName,
			CommitterEmail: in.CommitterEmail,
			Message:        in.Message,
			ParentSHAs:     in.ParentSHAs,
			TreeSHA:        in.TreeSHA,
			Additions:      in.Additions,
			Deletions:      in.Deletions,
			CommittedAt:    in.CommittedAt,
		}
		if c.ParentSHAs == nil {
			c.ParentSHAs = []string{}
		}
		if in.AuthorEmail != "" {
			if u, err := s.db.GetUserByEmail(ctx, in.AuthorEmail); err == nil {
				c.AuthorID = &u.ID
			}
		}
		err := s.db.CreateCommit(ctx, c)
		if errors.Is(err, database.ErrDuplicate) {
			existing, gerr := s.db.GetCommit(ctx, repo.ID, in.SHA)
			if gerr != nil {
				return nil, mapDBErr(gerr, "commit "+in.SHA)
			}
			c = existing
		} else if err != nil {
			return nil, mapDBErr(err, "commit "+in.SHA)
		} else {
			result.Commits = append(result.Commits, *c)
		}
		head = c
	}

	now := time.Now().UTC()
	branch, err := s.db.GetBranch(ctx, repo.ID, branchName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		branch = &models.Branch{RepoID: repo.ID, Name: branchName, CommitSHA: head.SHA}
		if err := s.db.CreateBranch(ctx, branch); err != nil {
			return nil, mapDBErr(err, "branch "+branchName)
		}
		if err := s.db.UpdateBranchCommit(ctx, repo.ID, branchName, head.SHA, now); err != nil {
			return nil, mapDBErr(err, "branch "+branchName)
		}
	case err != nil:
		return nil, mapDBErr(err, "branch "+branchName)
	default:
		if branch.Protected {
			ok, err := s.access.CanMutate(ctx, repo, actor, ActionSettings)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, forbidden("branch %q is protected", branchName)
			}
		}
		if err := s.db.UpdateBranchCommit(ctx, repo.ID, branchName, head.SHA, now); err != nil {
			return nil, mapDBErr(err, "branch "+branchName)
		}
		branch.CommitSHA, branch.UpdatedAt = head.SHA, now
	}
	result.Branch = branch

	for _, f := range in.Files {
		p := path.Clean(strings.TrimPrefix(f.Path, "/"))
		file := &models.File{
			RepoID:       repo.ID,
			BranchID:     branch.ID,
			Path:         p,
			Name:         path.Base(p),
			Size:         f.Size,
			SHA:          f.SHA,
			ContentType:  f.ContentType,
			IsBinary:     f.IsBinary,
			LastCommitID: &head.ID,
		}
		if err := s.db.UpsertFile(ctx, file); err != nil {
			return nil, mapDBErr(err, "file "+p)
		}
		result.Files = append(result.Files, *file)
	}

	s.activity.Record(ctx, actor, models.EventPush, repo, map[string]any{
		"ref":     branchName,
		"head":    head.SHA,
		"commits": len(in.Commits),
	})
	return result, nil
}

func (s *RepoService) ListCommits(ctx context.Context, owner, name string, viewer *Actor, page, perPage int) ([]models.Commit, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	commits, err := s.db.ListCommits(ctx, repo.ID, limit, offset)
	return commits, mapDBErr(err, "list commits")
}

func (s *RepoService) GetCommit(ctx context.Context, owner, name, sha string, viewer *Actor) (*models.Commit, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	c, err := s.db.GetCommit(ctx, repo.ID, sha)
	if err != nil {
		return nil, mapDBErr(err, "commit "+sha)
	}
	return c, nil
}

// ListFiles lists file entries on branch (the default branch when empty).
func (s *RepoService) ListFiles(ctx context.Context, owner, name, branch string, viewer *Actor) ([]models.File, error) {
	b, err := s.branchFor(ctx, owner, name, branch, viewer)
	if err != nil {
		return nil, err
	}
	files, err := s.db.ListFiles(ctx, b.ID)
	return files, mapDBErr(err, "list files")
}

func (s *RepoService) GetFile(ctx context.Context, owner, name, branch, filePath string, viewer *Actor) (*models.File, error) {
	b, err := s.branchFor(ctx, owner, name, branch, viewer)
	if err != nil {
		return nil, err
	}
	f, err := s.db.GetFile(ctx, b.ID, path.Clean(strings.TrimPrefix(filePath, "/")))
	if err != nil {
		return nil, mapDBErr(err, "file "+filePath)
	}
	return f, nil
}

func (s *RepoService) branchFor(ctx context.Context, owner, name, branch string, viewer *Actor) (*models.Branch, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	b, err := s.db.GetBranch(ctx, repo.ID, branch)
	if err != nil {
		return nil, mapDBErr(err, "branch "+branch)
	}
	return b, nil
}

// --- Stars and watches ---

// relation adapts the star and watch tables to one toggle implementation.
type relation struct {
	name   string
	action Action
	event  string
	add    func(ctx context.Context, repoID, userID int64) error
	remove func(ctx context.Context, repoID, userID int64) error
	has    func(ctx context.Context, repoID, userID int64) (bool, error)
}

func (s *RepoService) stars() relation {
	return relation{"star", ActionStar, models.EventStar, s.db.AddStar, s.db.RemoveStar, s.db.IsStarred}
}

func (s *RepoService) watches() relation {
	return relation{"watch", ActionWatch, models.EventWatch, s.db.AddWatch, s.db.RemoveWatch, s.db.IsWatching}
}

// set makes the relation exist (on=true) or not. It returns whether it changed anything.
func (s *RepoService) set(ctx context.Context, actor *Actor, owner, name string, rel relation, on bool) (bool, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return false, err
	}
	if err := s.access.Authorize(ctx, repo, actor, rel.action); err != nil {
		return false, err
	}
	if on {
		err = rel.add(ctx, repo.ID, actor.ID)
		if errors.Is(err, database.ErrDuplicate) {
			return false, nil
		}
		if err != nil {
			return false, mapDBErr(err, rel.name)
		}
		s.activity.Record(ctx, actor, rel.event, repo, nil)
		return true, nil
	}
	err = rel.remove(ctx, repo.ID, actor.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, mapDBErr(err, rel.name)
}

func (s *RepoService) toggle(ctx context.Context, actor *Actor, owner, name string, rel relation) (bool, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return false, err
	}
	if !actor.authenticated() {
		return false, forbidden("%s requires authentication", rel.name)
	}
	has, err := rel.has(ctx, repo.ID, actor.ID)
	if err != nil {
		return false, mapDBErr(err, rel.name)
	}
	if _, err := s.set(ctx, actor, owner, name, rel, !has); err != nil {
		return false, err
	}
	return !has, nil
}

// ToggleStar stars the repository when the actor has not, and unstars it otherwise.
func (s *RepoService) ToggleStar(ctx context.Context, actor *Actor, owner, name string) (starred bool, err error) {
	return s.toggle(ctx, actor, owner, name, s.stars())
}

func (s *RepoService) Star(ctx context.Context, actor *Actor, owner, name string) error {
	_, err := s.set(ctx, actor, owner, name, s.stars(), true)
	return err
}

func (s *RepoService) Unstar(ctx context.Context, actor *Actor, owner, name string) error {
	_, err := s.set(ctx, actor, owner, name, s.stars(), false)
	return err
}

func (s *RepoService) IsStarred(ctx context.Context, actor *Actor, owner, name string) (bool, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil || !actor.authenticated() {
		return false, err
	}
	ok, err := s.db.IsStarred(ctx, repo.ID, actor.ID)
	return ok, mapDBErr(err, "star")
}

func (s *RepoService) Stargazers(ctx context.Context, owner, name string, viewer *Actor, page, perPage int) ([]models.User, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	users, err := s.db.ListStargazers(ctx, repo.ID, limit, offset)
	return users, mapDBErr(err, "list stargazers")
}

// Starred lists the repositories username starred that viewer may see.
func (s *RepoService) Starred(ctx context.Context, username string, viewer *Actor, page, perPage int) ([]models.Repository, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	repos, err := s.db.ListStarredRepositories(ctx, user.ID, viewer.repoViewer(), limit, offset)
	return repos, mapDBErr(err, "list starred")
}

func (s *RepoService) ToggleWatch(ctx context.Context, actor *Actor, owner, name string) (watching bool, err error) {
	return s.toggle(ctx, actor, owner, name, s.watches())
}

func (s *RepoService) Watch(ctx context.Context, actor *Actor, owner, name string) error {
	_, err := s.set(ctx, actor, owner, name, s.watches(), true)
	return err
}

func (s *RepoService) Unwatch(ctx context.Context, actor *Actor, owner, name string) error {
	_, err := s.set(ctx, actor, owner, name, s.watches(), false)
	return err
}

func (s *RepoService) Watchers(ctx context.Context, owner, name string, viewer *Actor, page, perPage int) ([]models.User, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	users, err := s.db.ListWatchers(ctx, repo.ID, limit, offset)
	return users, mapDBErr(err, "list watchers")
}

// Permission reports the viewer's effective permission on the repository.
func (s *RepoService) Permission(ctx context.Context, owner, name string, viewer *Actor) (string, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return "", err
	}
	return s.access.Permission(ctx, repo, viewer)
}
