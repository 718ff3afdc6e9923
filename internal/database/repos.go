package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Repositories ---

const repoColumns = `r.id, r.owner_id, COALESCE(o.name, u.username), r.org_id, r.parent_id, r.name, r.description,
	r.is_private, r.is_fork, r.default_branch, r.language, r.homepage, r.topics, r.has_issues, r.archived,
	r.stars_count, r.forks_count, r.watchers_count, r.open_issues_count, r.created_at, r.updated_at, r.pushed_at`

const repoFrom = ` FROM repositories r
	JOIN users u ON u.id = r.owner_id
	LEFT JOIN orgs o ON o.id = r.org_id `

// RepoViewer is the reader a repository listing is filtered for. The zero
// value is an anonymous viewer that sees public repositories only.
type RepoViewer struct {
	UserID    int64
	SiteAdmin bool
}

// predicate returns a condition on the aliased repositories table r matching
// the rows the viewer may read: public ones, owned ones, and those reached
// through organization membership or a collaborator grant.
func (v RepoViewer) predicate() (string, []any) {
	if v.SiteAdmin {
		return `TRUE`, nil
	}
	if v.UserID <= 0 {
		return `r.is_private = FALSE`, nil
	}
	return `(r.is_private = FALSE OR r.owner_id = ?
		OR EXISTS (SELECT 1 FROM org_members om WHERE om.org_id = r.org_id AND om.user_id = ?)
		OR EXISTS (SELECT 1 FROM collaborators c WHERE c.repo_id = r.id AND c.user_id = ?))`,
		[]any{v.UserID, v.UserID, v.UserID}
}

func scanRepo(row rowScanner, r *models.Repository) error {
	return row.Scan(&r.ID, &r.OwnerID, &r.OwnerName, &r.OrgID, &r.ParentID, &r.Name, &r.Description,
		&r.IsPrivate, &r.IsFork, &r.DefaultBranch, &r.Language, &r.Homepage, listColumn{&r.Topics}, &r.HasIssues, &r.Archived,
		&r.StarsCount, &r.ForksCount, &r.WatchersCount, &r.OpenIssuesCount, &r.CreatedAt, &r.UpdatedAt, &r.PushedAt)
}

func scanRepoRow(rows *sql.Rows, r *models.Repository) error { return scanRepo(rows, r) }

// repoCountColumn names the owner counter a repository of the given visibility counts toward.
func repoCountColumn(private bool) string {
	if private {
		return "private_repos_count"
	}
	return "public_repos_count"
}

func insertRepo(ctx context.Context, h handle, repo *models.Repository) error {
	ts := now()
	id, err := h.insert(ctx,
		`INSERT INTO repositories (owner_id, org_id, parent_id, name, description, is_private, is_fork, default_branch,
		                           language, homepage, topics, has_issues, archived, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.OwnerID, repo.OrgID, repo.ParentID, repo.Name, repo.Description, repo.IsPrivate, repo.IsFork, repo.DefaultBranch,
		repo.Language, repo.Homepage, encodeList(repo.Topics), repo.HasIssues, repo.Archived, ts, ts)
	if err != nil {
		return err
	}
	if _, err := h.exec(ctx,
		`UPDATE users SET `+repoCountColumn(repo.IsPrivate)+` = `+repoCountColumn(repo.IsPrivate)+` + 1 WHERE id = ?`,
		repo.OwnerID); err != nil {
		return err
	}
	repo.ID = id
	repo.CreatedAt, repo.UpdatedAt = ts, ts
	if repo.Topics == nil {
		repo.Topics = []string{}
	}
	return nil
}

// CreateRepository inserts the repository and bumps the owner's public or private repository counter.
func (s *sqlStore) CreateRepository(ctx context.Context, repo *models.Repository) error {
	return s.withTx(ctx, func(h handle) error {
		return insertRepo(ctx, h, repo)
	})
}

// ForkRepository creates fork as a copy of the parent's branches and commit history,
// bumping the parent's forks_count and the fork owner's repository counter.
func (s *sqlStore) ForkRepository(ctx context.Context, parentID int64, fork *models.Repository) error {
	return s.withTx(ctx, func(h handle) error {
		fork.ParentID = &parentID
		fork.IsFork = true
		if err := insertRepo(ctx, h, fork); err != nil {
			return err
		}
		if err := h.execOne(ctx,
			`UPDATE repositories SET forks_count = forks_count + 1 WHERE id = ?`, parentID); err != nil {
			return err
		}
		return copyRepoContents(ctx, h, parentID, fork.ID)
	})
}

// copyRepoContents duplicates commits, branches and files from one repository into another.
func copyRepoContents(ctx context.Context, h handle, fromID, toID int64) error {
	commits, err := listCommits(ctx, h, fromID, -1, 0)
	if err != nil {
		return err
	}
	for i := range commits {
		c := commits[i]
		c.RepoID = toID
		if err := insertCommit(ctx, h, &c); err != nil {
			return err
		}
	}
	branches, err := listBranches(ctx, h, fromID)
	if err != nil {
		return err
	}
	for _, b := range branches {
		nb := models.Branch{RepoID: toID, Name: b.Name, CommitSHA: b.CommitSHA}
		if err := insertBranch(ctx, h, &nb); err != nil {
			return err
		}
		files, err := listFiles(ctx, h, b.ID)
		if err != nil {
			return err
		}
		for i := range files {
			f := files[i]
			f.RepoID, f.BranchID, f.LastCommitID = toID, nb.ID, nil
			if err := upsertFile(ctx, h, &f); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetRepository resolves owner/name where owner is the owning organization for
// org-scoped repositories and the owning user otherwise.
func (s *sqlStore) GetRepository(ctx context.Context, ownerName, repoName string) (*models.Repository, error) {
	r := &models.Repository{}
	err := scanRepo(s.h().queryRow(ctx,
		`SELECT `+repoColumns+repoFrom+
			`WHERE r.name = ? AND ((r.org_id IS NULL AND u.username = ?) OR o.name = ?)`,
		repoName, ownerName, ownerName), r)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) GetRepositoryByID(ctx context.Context, id int64) (*models.Repository, error) {
	return getRepositoryByID(ctx, s.h(), id)
}

func getRepositoryByID(ctx context.Context, h handle, id int64) (*models.Repository, error) {
	r := &models.Repository{}
	if err := scanRepo(h.queryRow(ctx, `SELECT `+repoColumns+repoFrom+`WHERE r.id = ?`, id), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) listRepos(ctx context.Context, where string, args ...any) ([]models.Repository, error) {
	rows, err := s.h().query(ctx, `SELECT `+repoColumns+repoFrom+where, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanRepoRow)
}

func (s *sqlStore) ListUserRepositories(ctx context.Context, userID int64, includePrivate bool) ([]models.Repository, error) {
	return s.listRepos(ctx,
		`WHERE r.owner_id = ? AND (? OR r.is_private = FALSE) ORDER BY r.updated_at DESC, r.id`,
		userID, includePrivate)
}

func (s *sqlStore) ListOrgRepositories(ctx context.Context, orgID int64, includePrivate bool) ([]models.Repository, error) {
	return s.listRepos(ctx,
		`WHERE r.org_id = ? AND (? OR r.is_private = FALSE) ORDER BY r.name`,
		orgID, includePrivate)
}

func (s *sqlStore) ListPublicRepositories(ctx context.Context, limit, offset int) ([]models.Repository, error) {
	limit, offset = pageBounds(limit, offset)
	return s.listRepos(ctx,
		`WHERE r.is_private = FALSE ORDER BY r.stars_count DESC, r.id LIMIT ? OFFSET ?`, limit, offset)
}

func (s *sqlStore) ListForks(ctx context.Context, parentID int64) ([]models.Repository, error) {
	return s.listRepos(ctx, `WHERE r.parent_id = ? ORDER BY r.created_at, r.id`, parentID)
}

func (s *sqlStore) ListRepositoryIDs(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM repositories ORDER BY id`)
}

// UpdateRepository writes repository settings. A visibility change moves the
// repository between the owner's public and private counters.
func (s *sqlStore) UpdateRepository(ctx context.Context, repo *models.Repository) error {
	return s.withTx(ctx, func(h handle) error {
		var wasPrivate bool
		if err := h.queryRow(ctx, `SELECT is_private FROM repositories WHERE id = ?`, repo.ID).Scan(&wasPrivate); err != nil {
			return err
		}
		repo.UpdatedAt = now()
		if _, err := h.exec(ctx,
			`UPDATE repositories SET name = ?, description = ?, is_private = ?, default_branch = ?, language = ?,
			        homepage = ?, topics = ?, has_issues = ?, archived = ?, updated_at = ?
			 WHERE id = ?`,
			repo.Name, repo.Description, repo.IsPrivate, repo.DefaultBranch, repo.Language,
			repo.Homepage, encodeList(repo.Topics), repo.HasIssues, repo.Archived, repo.UpdatedAt, repo.ID); err != nil {
			return err
		}
		if wasPrivate == repo.IsPrivate {
			return nil
		}
		from, to := repoCountColumn(wasPrivate), repoCountColumn(repo.IsPrivate)
		_, err := h.exec(ctx,
			`UPDATE users SET `+from+` = `+from+` - 1, `+to+` = `+to+` + 1 WHERE id = ?`, repo.OwnerID)
		return err
	})
}

// DeleteRepository removes the repository and everything it owns. Forks survive
// with their parent pointer cleared.
func (s *sqlStore) DeleteRepository(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(h handle) error {
		var ownerID int64
		var private bool
		var parentID *int64
		if err := h.queryRow(ctx,
			`SELECT owner_id, is_private, parent_id FROM repositories WHERE id = ?`, id).
			Scan(&ownerID, &private, &parentID); err != nil {
			return err
		}
		if _, err := h.exec(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
			return err
		}
		col := repoCountColumn(private)
		if _, err := h.exec(ctx, `UPDATE users SET `+col+` = `+col+` - 1 WHERE id = ?`, ownerID); err != nil {
			return err
		}
		if parentID != nil {
			if _, err := h.exec(ctx,
				`UPDATE repositories SET forks_count = forks_count - 1 WHERE id = ?`, *parentID); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Collaborators ---

func (s *sqlStore) AddCollaborator(ctx context.Context, c *models.Collaborator) error {
	c.AddedAt = now()
	_, err := s.h().exec(ctx,
		`INSERT INTO collaborators (repo_id, user_id, permission, added_at) VALUES (?, ?, ?, ?)`,
		c.RepoID, c.UserID, c.Permission, c.AddedAt)
	return normalizeErr(err)
}

func (s *sqlStore) SetCollaboratorPermission(ctx context.Context, repoID, userID int64, permission string) error {
	return s.h().execOne(ctx,
		`UPDATE collaborators SET permission = ? WHERE repo_id = ? AND user_id = ?`, permission, repoID, userID)
}

func (s *sqlStore) GetCollaborator(ctx context.Context, repoID, userID int64) (*models.Collaborator, error) {
	c := &models.Collaborator{}
	err := s.h().queryRow(ctx,
		`SELECT c.repo_id, c.user_id, u.username, c.permission, c.added_at
		 FROM collaborators c JOIN users u ON u.id = c.user_id
		 WHERE c.repo_id = ? AND c.user_id = ?`, repoID, userID).
		Scan(&c.RepoID, &c.UserID, &c.Username, &c.Permission, &c.AddedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *sqlStore) ListCollaborators(ctx context.Context, repoID int64) ([]models.Collaborator, error) {
	rows, err := s.h().query(ctx,
		`SELECT c.repo_id, c.user_id, u.username, c.permission, c.added_at
		 FROM collaborators c JOIN users u ON u.id = c.user_id
		 WHERE c.repo_id = ?
		 ORDER BY u.username`, repoID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, c *models.Collaborator) error {
		return r.Scan(&c.RepoID, &c.UserID, &c.Username, &c.Permission, &c.AddedAt)
	})
}

func (s *sqlStore) RemoveCollaborator(ctx context.Context, repoID, userID int64) error {
	return s.h().execOne(ctx, `DELETE FROM collaborators WHERE repo_id = ? AND user_id = ?`, repoID, userID)
}
