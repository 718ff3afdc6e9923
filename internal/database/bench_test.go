package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/odvcencio/codehub/internal/models"
)

func BenchmarkSQLiteCreateIssue(b *testing.B) {
	ctx, db, user, repoID := setupSQLiteBenchmarkDB(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		issue := &models.Issue{RepoID: repoID, Title: "bench", AuthorID: user.ID}
		if err := db.CreateIssue(ctx, issue); err != nil {
			b.Fatalf("create issue: %v", err)
		}
	}
}

func BenchmarkSQLiteStarToggle(b *testing.B) {
	ctx, db, user, repoID := setupSQLiteBenchmarkDB(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := db.AddStar(ctx, repoID, user.ID); err != nil {
			b.Fatalf("add star: %v", err)
		}
		if err := db.RemoveStar(ctx, repoID, user.ID); err != nil {
			b.Fatalf("remove star: %v", err)
		}
	}
}

func setupSQLiteBenchmarkDB(b *testing.B) (context.Context, *SQLiteDB, *models.User, int64) {
	b.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(b.TempDir(), "bench.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		b.Fatalf("open sqlite: %v", err)
	}
	b.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.Migrate(ctx); err != nil {
		b.Fatalf("migrate sqlite: %v", err)
	}

	user := &models.User{
		Username:     "bench",
		Email:        "bench@example.com",
		PasswordHash: "x",
	}
	if err := db.CreateUser(ctx, user); err != nil {
		b.Fatalf("create benchmark user: %v", err)
	}

	repo := &models.Repository{
		OwnerID:       user.ID,
		Name:          "bench-repo",
		DefaultBranch: "main",
	}
	if err := db.CreateRepository(ctx, repo); err != nil {
		b.Fatalf("create benchmark repository: %v", err)
	}

	return ctx, db, user, repo.ID
}
