package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Users ---

const userColumns = `u.id, u.username, u.email, u.password_hash, u.name, u.bio, u.location, u.company,
	u.website, u.twitter_username, u.is_admin, u.followers_count, u.following_count,
	u.public_repos_count, u.private_repos_count, u.created_at, u.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *models.User) error {
	return row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.Location, &u.Company,
		&u.Website, &u.TwitterUsername, &u.IsAdmin, &u.FollowersCount, &u.FollowingCount,
		&u.PublicReposCount, &u.PrivateReposCount, &u.CreatedAt, &u.UpdatedAt)
}

func scanUserRow(rows *sql.Rows, u *models.User) error { return scanUser(rows, u) }

func (s *sqlStore) CreateUser(ctx context.Context, user *models.User) error {
	ts := now()
	id, err := s.h().insert(ctx,
		`INSERT INTO users (username, email, password_hash, name, bio, location, company, website, twitter_username, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.Name, user.Bio, user.Location, user.Company,
		user.Website, user.TwitterUsername, user.IsAdmin, ts, ts)
	if err != nil {
		return normalizeErr(err)
	}
	user.ID = id
	user.CreatedAt, user.UpdatedAt = ts, ts
	return nil
}

func (s *sqlStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u := &models.User{}
	if err := scanUser(s.h().queryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *sqlStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "u.id = ?", id)
}

func (s *sqlStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "u.username = ?", username)
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "u.email = ?", email)
}

func (s *sqlStore) UpdateUserProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = now()
	err := s.h().execOne(ctx,
		`UPDATE users SET name = ?, bio = ?, location = ?, company = ?, website = ?, twitter_username = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name, user.Bio, user.Location, user.Company, user.Website, user.TwitterUsername, user.UpdatedAt, user.ID)
	return normalizeErr(err)
}

func (s *sqlStore) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.h().query(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanUserRow)
}

func (s *sqlStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	return s.listIDs(ctx, `SELECT id FROM users ORDER BY id`)
}

func (s *sqlStore) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.h().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, id *int64) error { return r.Scan(id) })
}

// --- Follows ---

// FollowUser inserts the edge and bumps both users' counters in one transaction.
// A repeated follow fails with ErrDuplicate and leaves the counters unchanged.
func (s *sqlStore) FollowUser(ctx context.Context, followerID, followingID int64) error {
	return s.withTx(ctx, func(h handle) error {
		if _, err := h.exec(ctx,
			`INSERT INTO user_follows (follower_id, following_id, created_at) VALUES (?, ?, ?)`,
			followerID, followingID, now()); err != nil {
			return err
		}
		if _, err := h.exec(ctx, `UPDATE users SET followers_count = followers_count + 1 WHERE id = ?`, followingID); err != nil {
			return err
		}
		_, err := h.exec(ctx, `UPDATE users SET following_count = following_count + 1 WHERE id = ?`, followerID)
		return err
	})
}

func (s *sqlStore) UnfollowUser(ctx context.Context, followerID, followingID int64) error {
	return s.withTx(ctx, func(h handle) error {
		if err := h.execOne(ctx,
			`DELETE FROM user_follows WHERE follower_id = ? AND following_id = ?`, followerID, followingID); err != nil {
			return err
		}
		if _, err := h.exec(ctx, `UPDATE users SET followers_count = followers_count - 1 WHERE id = ?`, followingID); err != nil {
			return err
		}
		_, err := h.exec(ctx, `UPDATE users SET following_count = following_count - 1 WHERE id = ?`, followerID)
		return err
	})
}

func (s *sqlStore) IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error) {
	return s.h().exists(ctx,
		`SELECT 1 FROM user_follows WHERE follower_id = ? AND following_id = ?`, followerID, followingID)
}

func (s *sqlStore) ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]models.User, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.h().query(ctx,
		`SELECT `+userColumns+` FROM user_follows f
		 JOIN users u ON u.id = f.follower_id
		 WHERE f.following_id = ?
		 ORDER BY f.created_at DESC, u.id
		 LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanUserRow)
}

func (s *sqlStore) ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]models.User, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.h().query(ctx,
		`SELECT `+userColumns+` FROM user_follows f
		 JOIN users u ON u.id = f.following_id
		 WHERE f.follower_id = ?
		 ORDER BY f.created_at DESC, u.id
		 LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanUserRow)
}
