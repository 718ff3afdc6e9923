package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Notifications ---

const notificationColumns = `id, user_id, repo_id, type, subject, reason, url, unread, created_at, updated_at`

func scanNotification(row rowScanner, n *models.Notification) error {
	return row.Scan(&n.ID, &n.UserID, &n.RepoID, &n.Type, &n.Subject, &n.Reason, &n.URL, &n.Unread, &n.CreatedAt, &n.UpdatedAt)
}

func (s *sqlStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	ts := now()
	id, err := s.h().insert(ctx,
		`INSERT INTO notifications (user_id, repo_id, type, subject, reason, url, unread, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, TRUE, ?, ?)`,
		n.UserID, n.RepoID, n.Type, n.Subject, n.Reason, n.URL, ts, ts)
	if err != nil {
		return err
	}
	n.ID, n.Unread = id, true
	n.CreatedAt, n.UpdatedAt = ts, ts
	return nil
}

func (s *sqlStore) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = pageBounds(limit, offset)
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND unread = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.h().query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, n *models.Notification) error { return scanNotification(rs, n) })
}

func (s *sqlStore) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.h().queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND unread = TRUE`, userID).Scan(&n)
	return n, err
}

func (s *sqlStore) SetNotificationUnread(ctx context.Context, id, userID int64, unread bool) error {
	return s.h().execOne(ctx,
		`UPDATE notifications SET unread = ?, updated_at = ? WHERE id = ? AND user_id = ?`, unread, now(), id, userID)
}

func (s *sqlStore) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.h().exec(ctx,
		`UPDATE notifications SET unread = FALSE, updated_at = ? WHERE user_id = ? AND unread = TRUE`, now(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
