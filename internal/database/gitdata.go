package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Branches ---

const branchColumns = `id, repo_id, name, commit_sha, protected, created_at, updated_at`

func scanBranch(row rowScanner, b *models.Branch) error {
	return row.Scan(&b.ID, &b.RepoID, &b.Name, &b.CommitSHA, &b.Protected, &b.CreatedAt, &b.UpdatedAt)
}

func insertBranch(ctx context.Context, h handle, b *models.Branch) error {
	ts := now()
	id, err := h.insert(ctx,
		`INSERT INTO branches (repo_id, name, commit_sha, protected, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.RepoID, b.Name, b.CommitSHA, b.Protected, ts, ts)
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt, b.UpdatedAt = ts, ts
	return nil
}

func (s *sqlStore) CreateBranch(ctx context.Context, b *models.Branch) error {
	return normalizeErr(insertBranch(ctx, s.h(), b))
}

func (s *sqlStore) GetBranch(ctx context.Context, repoID int64, name string) (*models.Branch, error) {
	b := &models.Branch{}
	if err := scanBranch(s.h().queryRow(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE repo_id = ? AND name = ?`, repoID, name), b); err != nil {
		return nil, err
	}
	return b, nil
}

func listBranches(ctx context.Context, h handle, repoID int64) ([]models.Branch, error) {
	rows, err := h.query(ctx, `SELECT `+branchColumns+` FROM branches WHERE repo_id = ? ORDER BY name`, repoID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, b *models.Branch) error { return scanBranch(r, b) })
}

func (s *sqlStore) ListBranches(ctx context.Context, repoID int64) ([]models.Branch, error) {
	return listBranches(ctx, s.h(), repoID)
}

// UpdateBranchCommit moves the branch head and records the push time on the repository.
func (s *sqlStore) UpdateBranchCommit(ctx context.Context, repoID int64, name, commitSHA string, at time.Time) error {
	at = at.UTC()
	return s.withTx(ctx, func(h handle) error {
		if err := h.execOne(ctx,
			`UPDATE branches SET commit_sha = ?, updated_at = ? WHERE repo_id = ? AND name = ?`,
			commitSHA, at, repoID, name); err != nil {
			return err
		}
		_, err := h.exec(ctx, `UPDATE repositories SET pushed_at = ? WHERE id = ?`, at, repoID)
		return err
	})
}

func (s *sqlStore) DeleteBranch(ctx context.Context, repoID int64, name string) error {
	return s.h().execOne(ctx, `DELETE FROM branches WHERE repo_id = ? AND name = ?`, repoID, name)
}

// --- Commits ---

const commitColumns = `id, repo_id, sha, author_id, author_name, author_email, committer_name, committer_email,
	message, parent_shas, tree_sha, additions, deletions, committed_at, created_at`

func scanCommit(row rowScanner, c *models.Commit) error {
	return row.Scan(&c.ID, &c.RepoID, &c.SHA, &c.AuthorID, &c.AuthorName, &c.AuthorEmail, &c.CommitterName, &c.CommitterEmail,
		&c.Message, listColumn{&c.ParentSHAs}, &c.TreeSHA, &c.Additions, &c.Deletions, &c.CommittedAt, &c.CreatedAt)
}

func insertCommit(ctx context.Context, h handle, c *models.Commit) error {
	c.CreatedAt = now()
	if c.CommittedAt.IsZero() {
		c.CommittedAt = c.CreatedAt
	}
	id, err := h.insert(ctx,
		`INSERT INTO commits (repo_id, sha, author_id, author_name, author_email, committer_name, committer_email,
		                      message, parent_shas, tree_sha, additions, deletions, committed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RepoID, c.SHA, c.AuthorID, c.AuthorName, c.AuthorEmail, c.CommitterName, c.CommitterEmail,
		c.Message, encodeList(c.ParentSHAs), c.TreeSHA, c.Additions, c.Deletions, c.CommittedAt.UTC(), c.CreatedAt)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (s *sqlStore) CreateCommit(ctx context.Context, c *models.Commit) error {
	return normalizeErr(insertCommit(ctx, s.h(), c))
}

func (s *sqlStore) GetCommit(ctx context.Context, repoID int64, sha string) (*models.Commit, error) {
	c := &models.Commit{}
	if err := scanCommit(s.h().queryRow(ctx,
		`SELECT `+commitColumns+` FROM commits WHERE repo_id = ? AND sha = ?`, repoID, sha), c); err != nil {
		return nil, err
	}
	return c, nil
}

// listCommits returns commits newest first; a negative limit returns all of them.
func listCommits(ctx context.Context, h handle, repoID int64, limit, offset int) ([]models.Commit, error) {
	query := `SELECT ` + commitColumns + ` FROM commits WHERE repo_id = ? ORDER BY committed_at DESC, id DESC`
	args := []any{repoID}
	if limit >= 0 {
		limit, offset = pageBounds(limit, offset)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := h.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, c *models.Commit) error { return scanCommit(r, c) })
}

func (s *sqlStore) ListCommits(ctx context.Context, repoID int64, limit, offset int) ([]models.Commit, error) {
	if limit < 0 {
		limit = 0
	}
	return listCommits(ctx, s.h(), repoID, limit, offset)
}

// --- Files ---

const fileColumns = `id, repo_id, branch_id, path, name, size, sha, content_type, is_binary, last_commit_id, created_at, updated_at`

func scanFile(row rowScanner, f *models.File) error {
	return row.Scan(&f.ID, &f.RepoID, &f.BranchID, &f.Path, &f.Name, &f.Size, &f.SHA, &f.ContentType,
		&f.IsBinary, &f.LastCommitID, &f.CreatedAt, &f.UpdatedAt)
}

func upsertFile(ctx context.Context, h handle, f *models.File) error {
	ts := now()
	id, err := h.insert(ctx,
		`INSERT INTO files (repo_id, branch_id, path, name, size, sha, content_type, is_binary, last_commit_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (branch_id, path) DO UPDATE SET
		   name = excluded.name, size = excluded.size, sha = excluded.sha, content_type = excluded.content_type,
		   is_binary = excluded.is_binary, last_commit_id = excluded.last_commit_id, updated_at = excluded.updated_at`,
		f.RepoID, f.BranchID, f.Path, f.Name, f.Size, f.SHA, f.ContentType, f.IsBinary, f.LastCommitID, ts, ts)
	if err != nil {
		return err
	}
	f.ID = id
	f.UpdatedAt = ts
	if f.CreatedAt.IsZero() {
		f.CreatedAt = ts
	}
	return nil
}

// UpsertFile records the file at path on its branch, replacing any previous entry.
func (s *sqlStore) UpsertFile(ctx context.Context, f *models.File) error {
	return normalizeErr(upsertFile(ctx, s.h(), f))
}

func (s *sqlStore) GetFile(ctx context.Context, branchID int64, path string) (*models.File, error) {
	f := &models.File{}
	if err := scanFile(s.h().queryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE branch_id = ? AND path = ?`, branchID, path), f); err != nil {
		return nil, err
	}
	return f, nil
}

func listFiles(ctx context.Context, h handle, branchID int64) ([]models.File, error) {
	rows, err := h.query(ctx, `SELECT `+fileColumns+` FROM files WHERE branch_id = ? ORDER BY path`, branchID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, f *models.File) error { return scanFile(r, f) })
}

func (s *sqlStore) ListFiles(ctx context.Context, branchID int64) ([]models.File, error) {
	return listFiles(ctx, s.h(), branchID)
}
