package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Pull Requests ---

const pullColumns = `p.id, p.repo_id, p.number, p.title, p.body, p.state, p.author_id, u.username, p.head_repo_id,
	p.head_branch, p.base_branch, p.head_sha, p.base_sha, p.draft, p.locked, p.merged_by_id, p.merged_at,
	p.merge_commit_sha, p.comments_count, p.commits_count, p.additions, p.deletions, p.changed_files,
	p.created_at, p.updated_at, p.closed_at`

func scanPull(row rowScanner, p *models.PullRequest) error {
	return row.Scan(&p.ID, &p.RepoID, &p.Number, &p.Title, &p.Body, &p.State, &p.AuthorID, &p.AuthorName, &p.HeadRepoID,
		&p.HeadBranch, &p.BaseBranch, &p.HeadSHA, &p.BaseSHA, &p.Draft, &p.Locked, &p.MergedByID, &p.MergedAt,
		&p.MergeCommitSHA, &p.CommentsCount, &p.CommitsCount, &p.Additions, &p.Deletions, &p.ChangedFiles,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt)
}

// CreatePullRequest reserves the pull request number in the same transaction as the insert.
func (s *sqlStore) CreatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	return s.withTx(ctx, func(h handle) error {
		number, err := reserveNumber(ctx, h, pr.RepoID, models.NumberKindPullRequest)
		if err != nil {
			return err
		}
		ts := now()
		id, err := h.insert(ctx,
			`INSERT INTO pull_requests (repo_id, number, title, body, state, author_id, head_repo_id, head_branch, base_branch,
			                            head_sha, base_sha, draft, commits_count, additions, deletions, changed_files,
			                            created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pr.RepoID, number, pr.Title, pr.Body, models.PullRequestStateOpen, pr.AuthorID, pr.HeadRepoID, pr.HeadBranch, pr.BaseBranch,
			pr.HeadSHA, pr.BaseSHA, pr.Draft, pr.CommitsCount, pr.Additions, pr.Deletions, pr.ChangedFiles,
			ts, ts)
		if err != nil {
			return err
		}
		pr.ID, pr.Number, pr.State = id, number, models.PullRequestStateOpen
		pr.CreatedAt, pr.UpdatedAt = ts, ts
		return nil
	})
}

func (s *sqlStore) GetPullRequest(ctx context.Context, repoID int64, number int) (*models.PullRequest, error) {
	p := &models.PullRequest{}
	err := scanPull(s.h().queryRow(ctx,
		`SELECT `+pullColumns+` FROM pull_requests p JOIN users u ON u.id = p.author_id
		 WHERE p.repo_id = ? AND p.number = ?`, repoID, number), p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqlStore) ListPullRequests(ctx context.Context, repoID int64, state string, limit, offset int) ([]models.PullRequest, error) {
	limit, offset = pageBounds(limit, offset)
	query := `SELECT ` + pullColumns + ` FROM pull_requests p JOIN users u ON u.id = p.author_id WHERE p.repo_id = ?`
	args := []any{repoID}
	if state != "" {
		query += ` AND p.state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY p.number DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.h().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, p *models.PullRequest) error { return scanPull(r, p) })
}

// UpdatePullRequest edits the descriptive fields of an open pull request.
func (s *sqlStore) UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	pr.UpdatedAt = now()
	return s.withTx(ctx, func(h handle) error {
		return transition(ctx, h, "pull_requests", pr.ID,
			`UPDATE pull_requests SET title = ?, body = ?, draft = ?, locked = ?, head_sha = ?, base_sha = ?, updated_at = ?
			 WHERE id = ? AND state = ?`,
			pr.Title, pr.Body, pr.Draft, pr.Locked, pr.HeadSHA, pr.BaseSHA, pr.UpdatedAt, pr.ID, models.PullRequestStateOpen)
	})
}

// ClosePullRequest moves an open pull request to closed. Closed and merged are terminal.
func (s *sqlStore) ClosePullRequest(ctx context.Context, prID int64, at time.Time) error {
	at = at.UTC()
	return s.withTx(ctx, func(h handle) error {
		return transition(ctx, h, "pull_requests", prID,
			`UPDATE pull_requests SET state = ?, closed_at = ?, updated_at = ? WHERE id = ? AND state = ?`,
			models.PullRequestStateClosed, at, at, prID, models.PullRequestStateOpen)
	})
}

// MergePullRequest moves an open pull request to merged and records the merge metadata.
func (s *sqlStore) MergePullRequest(ctx context.Context, prID, mergedByID int64, mergeCommitSHA string, at time.Time) error {
	at = at.UTC()
	return s.withTx(ctx, func(h handle) error {
		return transition(ctx, h, "pull_requests", prID,
			`UPDATE pull_requests SET state = ?, merged_by_id = ?, merged_at = ?, merge_commit_sha = ?, closed_at = ?, updated_at = ?
			 WHERE id = ? AND state = ?`,
			models.PullRequestStateMerged, mergedByID, at, mergeCommitSHA, at, at, prID, models.PullRequestStateOpen)
	})
}

func (s *sqlStore) AddPullRequestAssignee(ctx context.Context, prID, userID int64) error {
	return s.addUserEdge(ctx, "pull_request_assignees", "pull_request_id", prID, userID)
}

func (s *sqlStore) RemovePullRequestAssignee(ctx context.Context, prID, userID int64) error {
	return s.removeUserEdge(ctx, "pull_request_assignees", "pull_request_id", prID, userID)
}

func (s *sqlStore) ListPullRequestAssignees(ctx context.Context, prID int64) ([]models.User, error) {
	return s.listUserEdge(ctx, "pull_request_assignees", "pull_request_id", prID)
}

func (s *sqlStore) AddPullRequestReviewer(ctx context.Context, prID, userID int64) error {
	return s.addUserEdge(ctx, "pull_request_reviewers", "pull_request_id", prID, userID)
}

func (s *sqlStore) RemovePullRequestReviewer(ctx context.Context, prID, userID int64) error {
	return s.removeUserEdge(ctx, "pull_request_reviewers", "pull_request_id", prID, userID)
}

func (s *sqlStore) ListPullRequestReviewers(ctx context.Context, prID int64) ([]models.User, error) {
	return s.listUserEdge(ctx, "pull_request_reviewers", "pull_request_id", prID)
}
