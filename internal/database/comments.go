package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// ErrCommentTarget is returned when a comment does not name exactly one of an issue or a pull request.
var ErrCommentTarget = errors.New("comment must belong to exactly one of an issue or a pull request")

// --- Comments ---

const commentColumns = `c.id, c.issue_id, c.pull_request_id, c.author_id, u.username, c.body, c.created_at, c.updated_at`

func scanComment(row rowScanner, c *models.Comment) error {
	return row.Scan(&c.ID, &c.IssueID, &c.PullRequestID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt, &c.UpdatedAt)
}

// commentParent returns the parent table and id a comment counts toward.
func commentParent(issueID, prID *int64) (string, int64, error) {
	switch {
	case issueID != nil && prID == nil:
		return "issues", *issueID, nil
	case prID != nil && issueID == nil:
		return "pull_requests", *prID, nil
	}
	return "", 0, ErrCommentTarget
}

// CreateComment inserts the comment and bumps the parent's comments_count.
func (s *sqlStore) CreateComment(ctx context.Context, c *models.Comment) error {
	table, parentID, err := commentParent(c.IssueID, c.PullRequestID)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(h handle) error {
		ts := now()
		id, err := h.insert(ctx,
			`INSERT INTO comments (issue_id, pull_request_id, author_id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.IssueID, c.PullRequestID, c.AuthorID, c.Body, ts, ts)
		if err != nil {
			return err
		}
		if err := h.execOne(ctx,
			`UPDATE `+table+` SET comments_count = comments_count + 1, updated_at = ? WHERE id = ?`, ts, parentID); err != nil {
			return err
		}
		c.ID = id
		c.CreatedAt, c.UpdatedAt = ts, ts
		return nil
	})
}

func (s *sqlStore) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	c := &models.Comment{}
	if err := scanComment(s.h().queryRow(ctx,
		`SELECT `+commentColumns+` FROM comments c JOIN users u ON u.id = c.author_id WHERE c.id = ?`, id), c); err != nil {
		return nil, err
	}
	return c, nil
}

// CommentRepoID returns the repository of the issue or pull request the comment belongs to.
func (s *sqlStore) CommentRepoID(ctx context.Context, id int64) (int64, error) {
	var repoID int64
	err := s.h().queryRow(ctx,
		`SELECT COALESCE(i.repo_id, p.repo_id) FROM comments c
		 LEFT JOIN issues i ON i.id = c.issue_id
		 LEFT JOIN pull_requests p ON p.id = c.pull_request_id
		 WHERE c.id = ?`, id).Scan(&repoID)
	return repoID, err
}

func (s *sqlStore) listComments(ctx context.Context, col string, id int64, limit, offset int) ([]models.Comment, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.h().query(ctx,
		`SELECT `+commentColumns+` FROM comments c JOIN users u ON u.id = c.author_id
		 WHERE c.`+col+` = ?
		 ORDER BY c.created_at, c.id
		 LIMIT ? OFFSET ?`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, c *models.Comment) error { return scanComment(r, c) })
}

func (s *sqlStore) ListIssueComments(ctx context.Context, issueID int64, limit, offset int) ([]models.Comment, error) {
	return s.listComments(ctx, "issue_id", issueID, limit, offset)
}

func (s *sqlStore) ListPullRequestComments(ctx context.Context, prID int64, limit, offset int) ([]models.Comment, error) {
	return s.listComments(ctx, "pull_request_id", prID, limit, offset)
}

func (s *sqlStore) UpdateComment(ctx context.Context, id int64, body string, at time.Time) error {
	return s.h().execOne(ctx, `UPDATE comments SET body = ?, updated_at = ? WHERE id = ?`, body, at.UTC(), id)
}

// DeleteComment removes the comment and decrements the parent's comments_count.
func (s *sqlStore) DeleteComment(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(h handle) error {
		var issueID, prID *int64
		if err := h.queryRow(ctx, `SELECT issue_id, pull_request_id FROM comments WHERE id = ?`, id).
			Scan(&issueID, &prID); err != nil {
			return err
		}
		table, parentID, err := commentParent(issueID, prID)
		if err != nil {
			return err
		}
		if _, err := h.exec(ctx, `DELETE FROM comments WHERE id = ?`, id); err != nil {
			return err
		}
		_, err = h.exec(ctx, `UPDATE `+table+` SET comments_count = comments_count - 1 WHERE id = ?`, parentID)
		return err
	})
}
