package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Activity ---

const activityColumns = `a.id, a.user_id, u.username, a.event_type, a.repo_id, a.payload, a.public, a.created_at`

func scanActivity(row rowScanner, a *models.Activity) error {
	var payload string
	if err := row.Scan(&a.ID, &a.UserID, &a.Username, &a.EventType, &a.RepoID, &payload, &a.Public, &a.CreatedAt); err != nil {
		return err
	}
	a.Payload = json.RawMessage(payload)
	return nil
}

func scanActivityRow(rows *sql.Rows, a *models.Activity) error { return scanActivity(rows, a) }

func (s *sqlStore) CreateActivity(ctx context.Context, a *models.Activity) error {
	a.CreatedAt = now()
	payload := "{}"
	if len(a.Payload) > 0 {
		payload = string(a.Payload)
	}
	id, err := s.h().insert(ctx,
		`INSERT INTO activities (user_id, event_type, repo_id, payload, public, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.EventType, a.RepoID, payload, a.Public, a.CreatedAt)
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *sqlStore) listActivities(ctx context.Context, where string, args ...any) ([]models.Activity, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+activityColumns+` FROM activities a JOIN users u ON u.id = a.user_id `+where, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanActivityRow)
}

func (s *sqlStore) ListUserActivities(ctx context.Context, userID int64, includePrivate bool, limit, offset int) ([]models.Activity, error) {
	limit, offset = pageBounds(limit, offset)
	return s.listActivities(ctx,
		`WHERE a.user_id = ? AND (? OR a.public = TRUE) ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`,
		userID, includePrivate, limit, offset)
}

func (s *sqlStore) ListRepositoryActivities(ctx context.Context, repoID int64, limit, offset int) ([]models.Activity, error) {
	limit, offset = pageBounds(limit, offset)
	return s.listActivities(ctx,
		`WHERE a.repo_id = ? ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`, repoID, limit, offset)
}

// ListDashboardActivities returns the user's own events plus the public events of everyone they follow.
func (s *sqlStore) ListDashboardActivities(ctx context.Context, userID int64, limit, offset int) ([]models.Activity, error) {
	limit, offset = pageBounds(limit, offset)
	return s.listActivities(ctx,
		`WHERE a.user_id = ?
		    OR (a.public = TRUE AND a.user_id IN (SELECT following_id FROM user_follows WHERE follower_id = ?))
		 ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`, userID, userID, limit, offset)
}
