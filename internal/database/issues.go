package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Numbering ---

type numberSequence struct {
	table string
	seq   string
}

var numberSequences = map[models.NumberKind]numberSequence{
	models.NumberKindIssue:       {table: "issues", seq: "issue_seq"},
	models.NumberKindPullRequest: {table: "pull_requests", seq: "pull_seq"},
}

func sequenceFor(kind models.NumberKind) (numberSequence, error) {
	seq, ok := numberSequences[kind]
	if !ok {
		return numberSequence{}, fmt.Errorf("unknown number kind %q", kind)
	}
	return seq, nil
}

// reserveNumber atomically claims the next number of kind within the repository.
// The per-repository sequence column is bumped under the row lock, and never
// falls below the highest number already stored, so concurrent creators in the
// same repository always receive distinct values.
func reserveNumber(ctx context.Context, h handle, repoID int64, kind models.NumberKind) (int, error) {
	seq, err := sequenceFor(kind)
	if err != nil {
		return 0, err
	}
	maxExisting := `(SELECT COALESCE(MAX(number), 0) FROM ` + seq.table + ` WHERE repo_id = ?)`
	var n int
	err = h.queryRow(ctx,
		`UPDATE repositories SET `+seq.seq+` = CASE WHEN `+seq.seq+` >= `+maxExisting+`
		   THEN `+seq.seq+` ELSE `+maxExisting+` END + 1
		 WHERE id = ?
		 RETURNING `+seq.seq, repoID, repoID, repoID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// NextNumber previews the number the next creation of kind would receive. It
// reserves nothing; creation paths reserve inside their own transaction.
func (s *sqlStore) NextNumber(ctx context.Context, repoID int64, kind models.NumberKind) (int, error) {
	seq, err := sequenceFor(kind)
	if err != nil {
		return 0, err
	}
	var seqVal, maxVal int
	err = s.h().queryRow(ctx,
		`SELECT r.`+seq.seq+`, (SELECT COALESCE(MAX(number), 0) FROM `+seq.table+` WHERE repo_id = r.id)
		 FROM repositories r WHERE r.id = ?`, repoID).Scan(&seqVal, &maxVal)
	if err != nil {
		return 0, err
	}
	return max(seqVal, maxVal) + 1, nil
}

// transition runs a compare-and-set UPDATE against table row id. When no row
// matches it distinguishes a missing row (sql.ErrNoRows) from a row in the
// wrong state (ErrStateConflict).
func transition(ctx context.Context, h handle, table string, id int64, query string, args ...any) error {
	err := h.execOne(ctx, query, args...)
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	found, err := h.exists(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !found {
		return sql.ErrNoRows
	}
	return ErrStateConflict
}

// --- Issues ---

const issueColumns = `i.id, i.repo_id, i.number, i.title, i.body, i.state, i.author_id, u.username, i.locked,
	i.comments_count, i.created_at, i.updated_at, i.closed_at`

func scanIssue(row rowScanner, i *models.Issue) error {
	return row.Scan(&i.ID, &i.RepoID, &i.Number, &i.Title, &i.Body, &i.State, &i.AuthorID, &i.AuthorName, &i.Locked,
		&i.CommentsCount, &i.CreatedAt, &i.UpdatedAt, &i.ClosedAt)
}

// CreateIssue reserves the issue number and bumps open_issues_count in the same transaction as the insert.
func (s *sqlStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	return s.withTx(ctx, func(h handle) error {
		number, err := reserveNumber(ctx, h, issue.RepoID, models.NumberKindIssue)
		if err != nil {
			return err
		}
		ts := now()
		id, err := h.insert(ctx,
			`INSERT INTO issues (repo_id, number, title, body, state, author_id, locked, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			issue.RepoID, number, issue.Title, issue.Body, models.IssueStateOpen, issue.AuthorID, issue.Locked, ts, ts)
		if err != nil {
			return err
		}
		if _, err := h.exec(ctx,
			`UPDATE repositories SET open_issues_count = open_issues_count + 1 WHERE id = ?`, issue.RepoID); err != nil {
			return err
		}
		issue.ID, issue.Number, issue.State = id, number, models.IssueStateOpen
		issue.CreatedAt, issue.UpdatedAt, issue.ClosedAt = ts, ts, nil
		return nil
	})
}

func (s *sqlStore) GetIssue(ctx context.Context, repoID int64, number int) (*models.Issue, error) {
	i := &models.Issue{}
	err := scanIssue(s.h().queryRow(ctx,
		`SELECT `+issueColumns+` FROM issues i JOIN users u ON u.id = i.author_id
		 WHERE i.repo_id = ? AND i.number = ?`, repoID, number), i)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (s *sqlStore) ListIssues(ctx context.Context, repoID int64, state string, limit, offset int) ([]models.Issue, error) {
	limit, offset = pageBounds(limit, offset)
	query := `SELECT ` + issueColumns + ` FROM issues i JOIN users u ON u.id = i.author_id WHERE i.repo_id = ?`
	args := []any{repoID}
	if state != "" {
		query += ` AND i.state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY i.number DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	rows, err := s.h().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, i *models.Issue) error { return scanIssue(r, i) })
}

func (s *sqlStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = now()
	return s.h().execOne(ctx,
		`UPDATE issues SET title = ?, body = ?, locked = ?, updated_at = ? WHERE id = ?`,
		issue.Title, issue.Body, issue.Locked, issue.UpdatedAt, issue.ID)
}

// SetIssueState moves an issue between open and closed, keeping closed_at and the
// repository's open_issues_count in step. Setting the state the issue already
// has returns ErrStateConflict.
func (s *sqlStore) SetIssueState(ctx context.Context, issueID int64, state string, at time.Time) error {
	var closedAt *time.Time
	delta := 1
	switch state {
	case models.IssueStateClosed:
		t := at.UTC()
		closedAt = &t
		delta = -1
	case models.IssueStateOpen:
	default:
		return fmt.Errorf("invalid issue state %q", state)
	}
	return s.withTx(ctx, func(h handle) error {
		if err := transition(ctx, h, "issues", issueID,
			`UPDATE issues SET state = ?, closed_at = ?, updated_at = ? WHERE id = ? AND state <> ?`,
			state, closedAt, at.UTC(), issueID, state); err != nil {
			return err
		}
		_, err := h.exec(ctx,
			`UPDATE repositories SET open_issues_count = open_issues_count + ?
			 WHERE id = (SELECT repo_id FROM issues WHERE id = ?)`, delta, issueID)
		return err
	})
}

// --- Assignee and reviewer edges ---

func (s *sqlStore) addUserEdge(ctx context.Context, table, col string, id, userID int64) error {
	_, err := s.h().exec(ctx, `INSERT INTO `+table+` (`+col+`, user_id) VALUES (?, ?)`, id, userID)
	return normalizeErr(err)
}

func (s *sqlStore) removeUserEdge(ctx context.Context, table, col string, id, userID int64) error {
	return s.h().execOne(ctx, `DELETE FROM `+table+` WHERE `+col+` = ? AND user_id = ?`, id, userID)
}

func (s *sqlStore) listUserEdge(ctx context.Context, table, col string, id int64) ([]models.User, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+userColumns+` FROM `+table+` e JOIN users u ON u.id = e.user_id
		 WHERE e.`+col+` = ? ORDER BY u.username`, id)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanUserRow)
}

func (s *sqlStore) AddIssueAssignee(ctx context.Context, issueID, userID int64) error {
	return s.addUserEdge(ctx, "issue_assignees", "issue_id", issueID, userID)
}

func (s *sqlStore) RemoveIssueAssignee(ctx context.Context, issueID, userID int64) error {
	return s.removeUserEdge(ctx, "issue_assignees", "issue_id", issueID, userID)
}

func (s *sqlStore) ListIssueAssignees(ctx context.Context, issueID int64) ([]models.User, error) {
	return s.listUserEdge(ctx, "issue_assignees", "issue_id", issueID)
}
