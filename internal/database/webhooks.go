package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Webhooks ---

const webhookColumns = `id, repo_id, url, content_type, secret, events, active, created_at, updated_at`

func scanWebhook(row rowScanner, w *models.Webhook) error {
	return row.Scan(&w.ID, &w.RepoID, &w.URL, &w.ContentType, &w.Secret, listColumn{&w.Events}, &w.Active,
		&w.CreatedAt, &w.UpdatedAt)
}

func (s *sqlStore) CreateWebhook(ctx context.Context, hook *models.Webhook) error {
	ts := now()
	id, err := s.h().insert(ctx,
		`INSERT INTO webhooks (repo_id, url, content_type, secret, events, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.RepoID, hook.URL, hook.ContentType, hook.Secret, encodeList(hook.Events), hook.Active, ts, ts)
	if err != nil {
		return normalizeErr(err)
	}
	hook.ID = id
	hook.CreatedAt, hook.UpdatedAt = ts, ts
	return nil
}

func (s *sqlStore) GetWebhook(ctx context.Context, repoID, id int64) (*models.Webhook, error) {
	w := &models.Webhook{}
	if err := scanWebhook(s.h().queryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE repo_id = ? AND id = ?`, repoID, id), w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *sqlStore) ListWebhooks(ctx context.Context, repoID int64) ([]models.Webhook, error) {
	rows, err := s.h().query(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE repo_id = ? ORDER BY id`, repoID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, w *models.Webhook) error { return scanWebhook(rs, w) })
}

func (s *sqlStore) UpdateWebhook(ctx context.Context, hook *models.Webhook) error {
	hook.UpdatedAt = now()
	return s.h().execOne(ctx,
		`UPDATE webhooks SET url = ?, content_type = ?, secret = ?, events = ?, active = ?, updated_at = ?
		 WHERE repo_id = ? AND id = ?`,
		hook.URL, hook.ContentType, hook.Secret, encodeList(hook.Events), hook.Active, hook.UpdatedAt, hook.RepoID, hook.ID)
}

func (s *sqlStore) DeleteWebhook(ctx context.Context, repoID, id int64) error {
	return s.h().execOne(ctx, `DELETE FROM webhooks WHERE repo_id = ? AND id = ?`, repoID, id)
}
