package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/storage"
)

type testEnv struct {
	ctx    context.Context
	svc    *Services
	db     *database.SQLiteDB
	dbPath string
	blobs  *storage.LocalBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "codehub.db")
	db, err := database.OpenSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	blobs, err := storage.NewLocalBackend(filepath.Join(dir, "assets"))
	require.NoError(t, err)

	authSvc := auth.NewService("service-test-secret-0123456789", time.Hour)
	return &testEnv{ctx: ctx, svc: New(db, authSvc, blobs, nil), db: db, dbPath: dbPath, blobs: blobs}
}

func (e *testEnv) register(t *testing.T, username string) *Actor {
	t.Helper()
	user, err := e.svc.Users.Register(e.ctx, username, username+"@example.com", "correct-horse")
	require.NoError(t, err)
	return &Actor{ID: user.ID, Username: user.Username}
}

func (e *testEnv) createRepo(t *testing.T, owner *Actor, name string, private bool) {
	t.Helper()
	_, err := e.svc.Repos.Create(e.ctx, owner, CreateRepoInput{Name: name, Private: private})
	require.NoError(t, err)
}

// push records n fresh commits on branch, starting at sequence number start.
func (e *testEnv) push(t *testing.T, actor *Actor, owner, repo, branch string, start, n int) *PushResult {
	t.Helper()
	in := PushInput{Branch: branch}
	for i := start; i < start+n; i++ {
		c := CommitInput{
			SHA:         testSHA(i),
			Message:     fmt.Sprintf("commit %d", i),
			AuthorName:  actor.Username,
			AuthorEmail: actor.Username + "@example.com",
			CommittedAt: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		}
		if i > start {
			c.ParentSHAs = []string{testSHA(i - 1)}
		}
		in.Commits = append(in.Commits, c)
	}
	res, err := e.svc.Repos.Push(e.ctx, actor, owner, repo, in)
	require.NoError(t, err)
	return res
}

func testSHA(n int) string {
	return fmt.Sprintf("%040x", n)
}
