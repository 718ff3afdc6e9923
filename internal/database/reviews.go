package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Reviews ---

const reviewColumns = `r.id, r.pull_request_id, r.reviewer_id, u.username, r.body, r.state, r.commit_sha, r.submitted_at, r.created_at`

func scanReview(row rowScanner, r *models.Review) error {
	return row.Scan(&r.ID, &r.PullRequestID, &r.ReviewerID, &r.ReviewerName, &r.Body, &r.State, &r.CommitSHA,
		&r.SubmittedAt, &r.CreatedAt)
}

func (s *sqlStore) CreateReview(ctx context.Context, r *models.Review) error {
	r.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO reviews (pull_request_id, reviewer_id, body, state, commit_sha, submitted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.PullRequestID, r.ReviewerID, r.Body, r.State, r.CommitSHA, r.SubmittedAt, r.CreatedAt)
	if err != nil {
		return normalizeErr(err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) GetReview(ctx context.Context, id int64) (*models.Review, error) {
	r := &models.Review{}
	if err := scanReview(s.h().queryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id WHERE r.id = ?`, id), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) ListReviews(ctx context.Context, prID int64) ([]models.Review, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.reviewer_id
		 WHERE r.pull_request_id = ? ORDER BY r.created_at, r.id`, prID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, r *models.Review) error { return scanReview(rs, r) })
}

// TransitionReview moves a review to state to when its current state is one of
// from. A nil submittedAt keeps the stored submission time.
func (s *sqlStore) TransitionReview(ctx context.Context, id int64, from []string, to string, submittedAt *time.Time) error {
	if len(from) == 0 {
		return ErrStateConflict
	}
	args := []any{to, submittedAt, id}
	for _, f := range from {
		args = append(args, f)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	return s.withTx(ctx, func(h handle) error {
		return transition(ctx, h, "reviews", id,
			`UPDATE reviews SET state = ?, submitted_at = COALESCE(?, submitted_at)
			 WHERE id = ? AND state IN (`+placeholders+`)`, args...)
	})
}

// --- Review comments ---

const reviewCommentColumns = `c.id, c.review_id, c.pull_request_id, c.author_id, u.username, c.body, c.path, c.position,
	c.line, c.commit_sha, c.in_reply_to_id, c.created_at, c.updated_at`

func scanReviewComment(row rowScanner, c *models.ReviewComment) error {
	return row.Scan(&c.ID, &c.ReviewID, &c.PullRequestID, &c.AuthorID, &c.AuthorName, &c.Body, &c.Path, &c.Position,
		&c.Line, &c.CommitSHA, &c.InReplyToID, &c.CreatedAt, &c.UpdatedAt)
}

func scanReviewCommentRow(rows *sql.Rows, c *models.ReviewComment) error { return scanReviewComment(rows, c) }

func (s *sqlStore) CreateReviewComment(ctx context.Context, c *models.ReviewComment) error {
	ts := now()
	id, err := s.h().insert(ctx,
		`INSERT INTO review_comments (review_id, pull_request_id, author_id, body, path, position, line, commit_sha,
		                              in_reply_to_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ReviewID, c.PullRequestID, c.AuthorID, c.Body, c.Path, c.Position, c.Line, c.CommitSHA,
		c.InReplyToID, ts, ts)
	if err != nil {
		return normalizeErr(err)
	}
	c.ID = id
	c.CreatedAt, c.UpdatedAt = ts, ts
	return nil
}

func (s *sqlStore) GetReviewComment(ctx context.Context, id int64) (*models.ReviewComment, error) {
	c := &models.ReviewComment{}
	if err := scanReviewComment(s.h().queryRow(ctx,
		`SELECT `+reviewCommentColumns+` FROM review_comments c JOIN users u ON u.id = c.author_id WHERE c.id = ?`,
		id), c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *sqlStore) ListReviewComments(ctx context.Context, prID int64) ([]models.ReviewComment, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+reviewCommentColumns+` FROM review_comments c JOIN users u ON u.id = c.author_id
		 WHERE c.pull_request_id = ? ORDER BY c.path, c.line, c.created_at, c.id`, prID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanReviewCommentRow)
}

// ListReviewThread returns rootID and every reply beneath it, oldest first.
func (s *sqlStore) ListReviewThread(ctx context.Context, rootID int64) ([]models.ReviewComment, error) {
	rows, err := s.h().query(ctx,
		`WITH RECURSIVE thread(id) AS (
		   SELECT id FROM review_comments WHERE id = ?
		   UNION ALL
		   SELECT rc.id FROM review_comments rc JOIN thread t ON rc.in_reply_to_id = t.id
		 )
		 SELECT `+reviewCommentColumns+` FROM review_comments c
		 JOIN thread t ON t.id = c.id
		 JOIN users u ON u.id = c.author_id
		 ORDER BY c.created_at, c.id`, rootID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanReviewCommentRow)
}
