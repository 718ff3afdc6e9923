package service

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconcileAllRepairsDriftOnce(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	env.createRepo(t, octo, "hello", false)
	require.NoError(t, env.svc.Repos.Star(env.ctx, bob, "octo", "hello"))
	require.NoError(t, env.svc.Users.Follow(env.ctx, bob, "octo"))

	raw, err := sql.Open("sqlite", env.dbPath)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.ExecContext(env.ctx, `UPDATE repositories SET stars_count = 7, open_issues_count = 3 WHERE name = 'hello'`)
	require.NoError(t, err)
	_, err = raw.ExecContext(env.ctx, `UPDATE users SET followers_count = 0, public_repos_count = 9 WHERE username = 'octo'`)
	require.NoError(t, err)

	report, err := env.svc.Reconcile.ReconcileAll(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.UsersChecked)
	require.Equal(t, 1, report.RepositoriesChecked)
	require.Len(t, report.Repairs, 4)

	repo, err := env.svc.Repos.Get(env.ctx, "octo", "hello", nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.StarsCount)
	require.Equal(t, 0, repo.OpenIssuesCount)
	user, err := env.svc.Users.Get(env.ctx, "octo")
	require.NoError(t, err)
	require.Equal(t, 1, user.FollowersCount)
	require.Equal(t, 1, user.PublicReposCount)

	again, err := env.svc.Reconcile.ReconcileAll(env.ctx)
	require.NoError(t, err)
	require.Empty(t, again.Repairs)
}

func TestReconcileSingleEntities(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	env.createRepo(t, octo, "hello", false)

	repairs, err := env.svc.Reconcile.ReconcileUser(env.ctx, "octo")
	require.NoError(t, err)
	require.Empty(t, repairs)
	repairs, err = env.svc.Reconcile.ReconcileRepository(env.ctx, "octo", "hello")
	require.NoError(t, err)
	require.Empty(t, repairs)

	_, err = env.svc.Reconcile.ReconcileUser(env.ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
