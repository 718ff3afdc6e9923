package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// openTestPostgres connects to CODEHUB_TEST_POSTGRES_DSN, skipping when unset.
// Tests use unique names so they can share a database.
func openTestPostgres(t *testing.T) (context.Context, *PostgresDB, string) {
	t.Helper()
	dsn := os.Getenv("CODEHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CODEHUB_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return ctx, db, fmt.Sprintf("%d", time.Now().UnixNano())
}

func TestPostgresFollowAndStarCounters(t *testing.T) {
	ctx, db, suffix := openTestPostgres(t)
	alice := mustCreateUser(t, ctx, db, "alice"+suffix)
	bob := mustCreateUser(t, ctx, db, "bob"+suffix)

	if err := db.FollowUser(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.FollowUser(ctx, alice.ID, bob.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second follow error = %v, want ErrDuplicate", err)
	}
	if got := reloadUser(t, ctx, db, bob.ID).FollowersCount; got != 1 {
		t.Fatalf("followers_count = %d, want 1", got)
	}

	repo := mustCreateRepo(t, ctx, db, alice, "hello", false)
	if err := db.AddStar(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.RemoveStar(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).StarsCount; got != 0 {
		t.Fatalf("stars_count = %d, want 0", got)
	}
}

func TestPostgresCreateIssueAssignsUniqueNumbersConcurrently(t *testing.T) {
	ctx, db, suffix := openTestPostgres(t)
	user := mustCreateUser(t, ctx, db, "octo"+suffix)
	repo := mustCreateRepo(t, ctx, db, user, "hello", false)

	const n = 16
	numbers := make(chan int, n)
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			issue := &models.Issue{RepoID: repo.ID, Title: "Issue", AuthorID: user.ID}
			if err := db.CreateIssue(ctx, issue); err != nil {
				errCh <- err
				return
			}
			numbers <- issue.Number
		}()
	}
	wg.Wait()
	close(numbers)
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent create issue failed: %v", err)
	}
	seen := make(map[int]bool, n)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("duplicate issue number %d", num)
		}
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("missing issue number %d", i)
		}
	}
}

func TestPostgresReconcileRacingStarsKeepsEveryStar(t *testing.T) {
	ctx, db, suffix := openTestPostgres(t)
	testReconcileRacingStars(t, ctx, db, suffix)
}
