package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Labels ---

func scanLabel(row rowScanner, l *models.Label) error {
	return row.Scan(&l.ID, &l.RepoID, &l.Name, &l.Color, &l.Description, &l.CreatedAt)
}

func (s *sqlStore) CreateLabel(ctx context.Context, l *models.Label) error {
	l.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO labels (repo_id, name, color, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.RepoID, l.Name, l.Color, l.Description, l.CreatedAt)
	if err != nil {
		return normalizeErr(err)
	}
	l.ID = id
	return nil
}

func (s *sqlStore) GetLabel(ctx context.Context, repoID int64, name string) (*models.Label, error) {
	l := &models.Label{}
	if err := scanLabel(s.h().queryRow(ctx,
		`SELECT id, repo_id, name, color, description, created_at FROM labels WHERE repo_id = ? AND name = ?`,
		repoID, name), l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *sqlStore) ListLabels(ctx context.Context, repoID int64) ([]models.Label, error) {
	rows, err := s.h().query(ctx,
		`SELECT id, repo_id, name, color, description, created_at FROM labels WHERE repo_id = ? ORDER BY name`, repoID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, l *models.Label) error { return scanLabel(r, l) })
}

func (s *sqlStore) UpdateLabel(ctx context.Context, l *models.Label) error {
	err := s.h().execOne(ctx,
		`UPDATE labels SET name = ?, color = ?, description = ? WHERE id = ?`, l.Name, l.Color, l.Description, l.ID)
	return normalizeErr(err)
}

func (s *sqlStore) DeleteLabel(ctx context.Context, id int64) error {
	return s.h().execOne(ctx, `DELETE FROM labels WHERE id = ?`, id)
}

func (s *sqlStore) addLabelEdge(ctx context.Context, table, col string, id, labelID int64) error {
	_, err := s.h().exec(ctx,
		`INSERT INTO `+table+` (`+col+`, label_id, added_at) VALUES (?, ?, ?)`, id, labelID, now())
	return normalizeErr(err)
}

func (s *sqlStore) listLabelEdge(ctx context.Context, table, col string, id int64) ([]models.Label, error) {
	rows, err := s.h().query(ctx,
		`SELECT l.id, l.repo_id, l.name, l.color, l.description, l.created_at, e.added_at
		 FROM `+table+` e JOIN labels l ON l.id = e.label_id
		 WHERE e.`+col+` = ? ORDER BY l.name`, id)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, l *models.Label) error {
		return r.Scan(&l.ID, &l.RepoID, &l.Name, &l.Color, &l.Description, &l.CreatedAt, &l.AddedAt)
	})
}

func (s *sqlStore) AddIssueLabel(ctx context.Context, issueID, labelID int64) error {
	return s.addLabelEdge(ctx, "issue_labels", "issue_id", issueID, labelID)
}

func (s *sqlStore) RemoveIssueLabel(ctx context.Context, issueID, labelID int64) error {
	return s.h().execOne(ctx, `DELETE FROM issue_labels WHERE issue_id = ? AND label_id = ?`, issueID, labelID)
}

func (s *sqlStore) ListIssueLabels(ctx context.Context, issueID int64) ([]models.Label, error) {
	return s.listLabelEdge(ctx, "issue_labels", "issue_id", issueID)
}

func (s *sqlStore) AddPullRequestLabel(ctx context.Context, prID, labelID int64) error {
	return s.addLabelEdge(ctx, "pull_request_labels", "pull_request_id", prID, labelID)
}

func (s *sqlStore) RemovePullRequestLabel(ctx context.Context, prID, labelID int64) error {
	return s.h().execOne(ctx, `DELETE FROM pull_request_labels WHERE pull_request_id = ? AND label_id = ?`, prID, labelID)
}

func (s *sqlStore) ListPullRequestLabels(ctx context.Context, prID int64) ([]models.Label, error) {
	return s.listLabelEdge(ctx, "pull_request_labels", "pull_request_id", prID)
}
