package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/odvcencio/codehub/internal/models"
)

// counterCheck pairs a cached counter column with the query computing its true value.
type counterCheck struct {
	column string
	truth  string
}

var userCounterChecks = []counterCheck{
	{column: "followers_count", truth: `SELECT COUNT(*) FROM user_follows WHERE following_id = ?`},
	{column: "following_count", truth: `SELECT COUNT(*) FROM user_follows WHERE follower_id = ?`},
	{column: "public_repos_count", truth: `SELECT COUNT(*) FROM repositories WHERE owner_id = ? AND is_private = FALSE`},
	{column: "private_repos_count", truth: `SELECT COUNT(*) FROM repositories WHERE owner_id = ? AND is_private = TRUE`},
}

var repoCounterChecks = []counterCheck{
	{column: "stars_count", truth: `SELECT COUNT(*) FROM stars WHERE repo_id = ?`},
	{column: "forks_count", truth: `SELECT COUNT(*) FROM repositories WHERE parent_id = ?`},
	{column: "watchers_count", truth: `SELECT COUNT(*) FROM watches WHERE repo_id = ?`},
	{column: "open_issues_count", truth: `SELECT COUNT(*) FROM issues WHERE repo_id = ? AND state = 'open'`},
}

// ReconcileUserCounters recomputes the user's cached counters from their source
// rows and rewrites any that drifted. Running it twice writes nothing the second time.
func (s *sqlStore) ReconcileUserCounters(ctx context.Context, userID int64) ([]models.CounterRepair, error) {
	return s.reconcile(ctx, "users", "user", userID, userCounterChecks)
}

// ReconcileRepositoryCounters is the repository counterpart of ReconcileUserCounters.
func (s *sqlStore) ReconcileRepositoryCounters(ctx context.Context, repoID int64) ([]models.CounterRepair, error) {
	return s.reconcile(ctx, "repositories", "repository", repoID, repoCounterChecks)
}

func (s *sqlStore) reconcile(ctx context.Context, table, entity string, id int64, checks []counterCheck) ([]models.CounterRepair, error) {
	var repairs []models.CounterRepair
	err := s.withTx(ctx, func(h handle) error {
		repairs = repairs[:0]
		// Counter writers update this row in their own transaction, so holding
		// its lock keeps their source rows and increments out of the window
		// between the count and the rewrite. SQLite serializes writers already.
		if h.d == dialectPostgres {
			var locked int64
			if err := h.queryRow(ctx, `SELECT id FROM `+table+` WHERE id = ? FOR UPDATE`, id).Scan(&locked); err != nil {
				return err
			}
		}
		for _, c := range checks {
			var cached int
			if err := h.queryRow(ctx, `SELECT `+c.column+` FROM `+table+` WHERE id = ?`, id).Scan(&cached); err != nil {
				return err
			}
			var actual int
			err := h.queryRow(ctx,
				`UPDATE `+table+` SET `+c.column+` = (`+c.truth+`) WHERE id = ? AND `+c.column+` <> (`+c.truth+`) RETURNING `+c.column,
				id, id, id).Scan(&actual)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			repairs = append(repairs, models.CounterRepair{
				Entity:   entity,
				EntityID: id,
				Counter:  c.column,
				Before:   cached,
				After:    actual,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repairs, nil
}
