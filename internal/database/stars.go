package database

import (
	"context"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Stars and watches ---

// A membership is a (repo, user) row whose count is cached on the repository.
type membership struct {
	table   string
	counter string
}

var (
	starMembership  = membership{table: "stars", counter: "stars_count"}
	watchMembership = membership{table: "watches", counter: "watchers_count"}
)

func (s *sqlStore) addMembership(ctx context.Context, m membership, repoID, userID int64) error {
	return s.withTx(ctx, func(h handle) error {
		if _, err := h.exec(ctx,
			`INSERT INTO `+m.table+` (repo_id, user_id, created_at) VALUES (?, ?, ?)`, repoID, userID, now()); err != nil {
			return err
		}
		_, err := h.exec(ctx, `UPDATE repositories SET `+m.counter+` = `+m.counter+` + 1 WHERE id = ?`, repoID)
		return err
	})
}

func (s *sqlStore) removeMembership(ctx context.Context, m membership, repoID, userID int64) error {
	return s.withTx(ctx, func(h handle) error {
		if err := h.execOne(ctx,
			`DELETE FROM `+m.table+` WHERE repo_id = ? AND user_id = ?`, repoID, userID); err != nil {
			return err
		}
		_, err := h.exec(ctx, `UPDATE repositories SET `+m.counter+` = `+m.counter+` - 1 WHERE id = ?`, repoID)
		return err
	})
}

func (s *sqlStore) hasMembership(ctx context.Context, m membership, repoID, userID int64) (bool, error) {
	return s.h().exists(ctx, `SELECT 1 FROM `+m.table+` WHERE repo_id = ? AND user_id = ?`, repoID, userID)
}

func (s *sqlStore) listMembers(ctx context.Context, m membership, repoID int64, limit, offset int) ([]models.User, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := s.h().query(ctx,
		`SELECT `+userColumns+` FROM `+m.table+` e JOIN users u ON u.id = e.user_id
		 WHERE e.repo_id = ?
		 ORDER BY e.created_at DESC, u.id
		 LIMIT ? OFFSET ?`, repoID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanUserRow)
}

// AddStar fails with ErrDuplicate when the user already starred the repository.
func (s *sqlStore) AddStar(ctx context.Context, repoID, userID int64) error {
	return s.addMembership(ctx, starMembership, repoID, userID)
}

// RemoveStar returns sql.ErrNoRows when the user has not starred the repository.
func (s *sqlStore) RemoveStar(ctx context.Context, repoID, userID int64) error {
	return s.removeMembership(ctx, starMembership, repoID, userID)
}

func (s *sqlStore) IsStarred(ctx context.Context, repoID, userID int64) (bool, error) {
	return s.hasMembership(ctx, starMembership, repoID, userID)
}

func (s *sqlStore) ListStargazers(ctx context.Context, repoID int64, limit, offset int) ([]models.User, error) {
	return s.listMembers(ctx, starMembership, repoID, limit, offset)
}

// ListStarredRepositories pages through the repositories userID starred,
// skipping private ones the viewer cannot read.
func (s *sqlStore) ListStarredRepositories(ctx context.Context, userID int64, viewer RepoViewer, limit, offset int) ([]models.Repository, error) {
	limit, offset = pageBounds(limit, offset)
	visible, visibleArgs := viewer.predicate()
	args := append([]any{userID}, visibleArgs...)
	args = append(args, limit, offset)
	rows, err := s.h().query(ctx,
		`SELECT `+repoColumns+repoFrom+`
		 JOIN stars st ON st.repo_id = r.id
		 WHERE st.user_id = ? AND `+visible+`
		 ORDER BY st.created_at DESC, r.id
		 LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanRepoRow)
}

func (s *sqlStore) AddWatch(ctx context.Context, repoID, userID int64) error {
	return s.addMembership(ctx, watchMembership, repoID, userID)
}

func (s *sqlStore) RemoveWatch(ctx context.Context, repoID, userID int64) error {
	return s.removeMembership(ctx, watchMembership, repoID, userID)
}

func (s *sqlStore) IsWatching(ctx context.Context, repoID, userID int64) (bool, error) {
	return s.hasMembership(ctx, watchMembership, repoID, userID)
}

func (s *sqlStore) ListWatchers(ctx context.Context, repoID int64, limit, offset int) ([]models.User, error) {
	return s.listMembers(ctx, watchMembership, repoID, limit, offset)
}
