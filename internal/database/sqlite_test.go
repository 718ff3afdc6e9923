package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

func openTestSQLite(t *testing.T) (context.Context, *SQLiteDB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return ctx, db
}

func mustCreateUser(t *testing.T, ctx context.Context, db DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := db.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func mustCreateRepo(t *testing.T, ctx context.Context, db DB, owner *models.User, name string, private bool) *models.Repository {
	t.Helper()
	repo := &models.Repository{OwnerID: owner.ID, Name: name, DefaultBranch: "main", IsPrivate: private, HasIssues: true}
	if err := db.CreateRepository(ctx, repo); err != nil {
		t.Fatalf("create repository %s: %v", name, err)
	}
	return repo
}

func reloadUser(t *testing.T, ctx context.Context, db DB, id int64) *models.User {
	t.Helper()
	u, err := db.GetUserByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func reloadRepo(t *testing.T, ctx context.Context, db DB, id int64) *models.Repository {
	t.Helper()
	r, err := db.GetRepositoryByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestSQLiteFollowUserMaintainsCounters(t *testing.T) {
	ctx, db := openTestSQLite(t)
	alice := mustCreateUser(t, ctx, db, "alice")
	bob := mustCreateUser(t, ctx, db, "bob")

	if err := db.FollowUser(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.FollowUser(ctx, alice.ID, bob.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second follow error = %v, want ErrDuplicate", err)
	}

	if got := reloadUser(t, ctx, db, bob.ID).FollowersCount; got != 1 {
		t.Fatalf("bob followers_count = %d, want 1", got)
	}
	if got := reloadUser(t, ctx, db, alice.ID).FollowingCount; got != 1 {
		t.Fatalf("alice following_count = %d, want 1", got)
	}

	followers, err := db.ListFollowers(ctx, bob.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(followers) != 1 || followers[0].Username != "alice" {
		t.Fatalf("unexpected followers: %+v", followers)
	}

	if err := db.UnfollowUser(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.UnfollowUser(ctx, alice.ID, bob.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second unfollow error = %v, want sql.ErrNoRows", err)
	}
	if got := reloadUser(t, ctx, db, bob.ID).FollowersCount; got != 0 {
		t.Fatalf("bob followers_count after unfollow = %d, want 0", got)
	}
	if got := reloadUser(t, ctx, db, alice.ID).FollowingCount; got != 0 {
		t.Fatalf("alice following_count after unfollow = %d, want 0", got)
	}
}

func TestSQLiteCreateRepositoryRejectsDuplicateName(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	mustCreateRepo(t, ctx, db, octo, "hello", false)

	dup := &models.Repository{OwnerID: octo.ID, Name: "hello", DefaultBranch: "main"}
	if err := db.CreateRepository(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate repository error = %v, want ErrDuplicate", err)
	}
	if got := reloadUser(t, ctx, db, octo.ID).PublicReposCount; got != 1 {
		t.Fatalf("public_repos_count = %d, want 1", got)
	}
}

func TestSQLiteGetRepositoryResolvesOrgScope(t *testing.T) {
	ctx, db := openTestSQLite(t)
	owner := mustCreateUser(t, ctx, db, "alice")
	org := &models.Org{Name: "acme", DisplayName: "Acme Corp", OwnerID: owner.ID}
	if err := db.CreateOrg(ctx, org); err != nil {
		t.Fatal(err)
	}
	member, err := db.GetOrgMember(ctx, org.ID, owner.ID)
	if err != nil {
		t.Fatalf("expected creator membership: %v", err)
	}
	if member.Role != models.OrgRoleOwner {
		t.Fatalf("creator role = %q, want owner", member.Role)
	}

	repo := &models.Repository{OwnerID: owner.ID, OrgID: &org.ID, Name: "platform", DefaultBranch: "main"}
	if err := db.CreateRepository(ctx, repo); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRepository(ctx, "acme", "platform")
	if err != nil {
		t.Fatalf("expected org-scoped repository lookup to work: %v", err)
	}
	if got.OwnerName != "acme" || got.OrgID == nil || *got.OrgID != org.ID {
		t.Fatalf("unexpected repository: owner %q org %v", got.OwnerName, got.OrgID)
	}
	if _, err := db.GetRepository(ctx, "alice", "platform"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("user-scoped lookup of org repository error = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteRepositoryVisibilityMovesOwnerCounters(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	repo := mustCreateRepo(t, ctx, db, octo, "secret", true)

	u := reloadUser(t, ctx, db, octo.ID)
	if u.PrivateReposCount != 1 || u.PublicReposCount != 0 {
		t.Fatalf("counters after private create = %d public / %d private", u.PublicReposCount, u.PrivateReposCount)
	}

	repo.IsPrivate = false
	repo.Topics = []string{"go", "sql"}
	if err := db.UpdateRepository(ctx, repo); err != nil {
		t.Fatal(err)
	}
	u = reloadUser(t, ctx, db, octo.ID)
	if u.PrivateReposCount != 0 || u.PublicReposCount != 1 {
		t.Fatalf("counters after publish = %d public / %d private", u.PublicReposCount, u.PrivateReposCount)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).Topics; len(got) != 2 || got[0] != "go" {
		t.Fatalf("topics = %v, want [go sql]", got)
	}
}

func TestSQLiteDeleteRepositoryCascadesAndClearsForkParent(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	bob := mustCreateUser(t, ctx, db, "bob")
	parent := mustCreateRepo(t, ctx, db, octo, "hello", false)

	if err := db.CreateCommit(ctx, &models.Commit{
		RepoID: parent.ID, SHA: "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3", AuthorName: "octo", AuthorEmail: "octo@example.com",
		CommitterName: "octo", CommitterEmail: "octo@example.com", Message: "init",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateBranch(ctx, &models.Branch{RepoID: parent.ID, Name: "main", CommitSHA: "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3"}); err != nil {
		t.Fatal(err)
	}
	issue := &models.Issue{RepoID: parent.ID, Title: "Bug", AuthorID: bob.ID}
	if err := db.CreateIssue(ctx, issue); err != nil {
		t.Fatal(err)
	}

	fork := &models.Repository{OwnerID: bob.ID, Name: "hello", DefaultBranch: "main"}
	if err := db.ForkRepository(ctx, parent.ID, fork); err != nil {
		t.Fatal(err)
	}
	if got := reloadRepo(t, ctx, db, parent.ID).ForksCount; got != 1 {
		t.Fatalf("forks_count = %d, want 1", got)
	}
	if _, err := db.GetBranch(ctx, fork.ID, "main"); err != nil {
		t.Fatalf("fork should carry parent branches: %v", err)
	}
	if _, err := db.GetCommit(ctx, fork.ID, "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3"); err != nil {
		t.Fatalf("fork should carry parent commits: %v", err)
	}

	if err := db.DeleteRepository(ctx, parent.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetIssue(ctx, parent.ID, issue.Number); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("issue should be deleted with repository, got %v", err)
	}
	got := reloadRepo(t, ctx, db, fork.ID)
	if got.ParentID != nil {
		t.Fatalf("fork parent_id = %v, want nil", *got.ParentID)
	}
	if !got.IsFork {
		t.Fatal("fork should keep is_fork after parent deletion")
	}
	if n := reloadUser(t, ctx, db, octo.ID).PublicReposCount; n != 0 {
		t.Fatalf("octo public_repos_count = %d, want 0", n)
	}
}

func TestSQLiteIssueNumberingAndOpenCount(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	bob := mustCreateUser(t, ctx, db, "bob")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)

	next, err := db.NextNumber(ctx, repo.ID, models.NumberKindIssue)
	if err != nil {
		t.Fatal(err)
	}
	if next != 1 {
		t.Fatalf("NextNumber on empty repo = %d, want 1", next)
	}

	issue := &models.Issue{RepoID: repo.ID, Title: "Bug", AuthorID: bob.ID}
	if err := db.CreateIssue(ctx, issue); err != nil {
		t.Fatal(err)
	}
	if issue.Number != 1 || issue.State != models.IssueStateOpen {
		t.Fatalf("issue = #%d %s, want #1 open", issue.Number, issue.State)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).OpenIssuesCount; got != 1 {
		t.Fatalf("open_issues_count = %d, want 1", got)
	}

	// Pull requests number independently of issues.
	pr := &models.PullRequest{RepoID: repo.ID, Title: "Fix", AuthorID: bob.ID, HeadBranch: "fix", BaseBranch: "main"}
	if err := db.CreatePullRequest(ctx, pr); err != nil {
		t.Fatal(err)
	}
	if pr.Number != 1 {
		t.Fatalf("first pull request number = %d, want 1", pr.Number)
	}

	closedAt := time.Now()
	if err := db.SetIssueState(ctx, issue.ID, models.IssueStateClosed, closedAt); err != nil {
		t.Fatal(err)
	}
	if err := db.SetIssueState(ctx, issue.ID, models.IssueStateClosed, closedAt); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("closing closed issue error = %v, want ErrStateConflict", err)
	}
	got, err := db.GetIssue(ctx, repo.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.IssueStateClosed || got.ClosedAt == nil {
		t.Fatalf("issue after close = %s closed_at=%v", got.State, got.ClosedAt)
	}
	if n := reloadRepo(t, ctx, db, repo.ID).OpenIssuesCount; n != 0 {
		t.Fatalf("open_issues_count after close = %d, want 0", n)
	}

	if err := db.SetIssueState(ctx, issue.ID, models.IssueStateOpen, time.Now()); err != nil {
		t.Fatal(err)
	}
	if n := reloadRepo(t, ctx, db, repo.ID).OpenIssuesCount; n != 1 {
		t.Fatalf("open_issues_count after reopen = %d, want 1", n)
	}
	if err := db.SetIssueState(ctx, 9999, models.IssueStateClosed, time.Now()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing issue error = %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteCreateIssueAssignsUniqueNumbersConcurrently(t *testing.T) {
	ctx, db := openTestSQLite(t)
	user := mustCreateUser(t, ctx, db, "alice")
	repo := mustCreateRepo(t, ctx, db, user, "repo", false)

	const n = 12
	errCh := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errCh <- db.CreateIssue(ctx, &models.Issue{RepoID: repo.ID, Title: "Issue", AuthorID: user.ID})
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent create issue failed: %v", err)
		}
	}

	issues, err := db.ListIssues(ctx, repo.ID, "", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != n {
		t.Fatalf("expected %d issues, got %d", n, len(issues))
	}
	seen := make(map[int]bool, n)
	for _, issue := range issues {
		if issue.Number < 1 || issue.Number > n {
			t.Fatalf("unexpected issue number %d", issue.Number)
		}
		if seen[issue.Number] {
			t.Fatalf("duplicate issue number %d", issue.Number)
		}
		seen[issue.Number] = true
	}
	if got := reloadRepo(t, ctx, db, repo.ID).OpenIssuesCount; got != n {
		t.Fatalf("open_issues_count = %d, want %d", got, n)
	}
}

func TestSQLiteMergedPullRequestIsTerminal(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)

	pr := &models.PullRequest{RepoID: repo.ID, Title: "Feature", AuthorID: octo.ID, HeadBranch: "feature", BaseBranch: "main"}
	if err := db.CreatePullRequest(ctx, pr); err != nil {
		t.Fatal(err)
	}
	mergedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := db.MergePullRequest(ctx, pr.ID, octo.ID, "deadbeef", mergedAt); err != nil {
		t.Fatal(err)
	}
	if err := db.MergePullRequest(ctx, pr.ID, octo.ID, "cafebabe", mergedAt.Add(time.Hour)); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second merge error = %v, want ErrStateConflict", err)
	}
	if err := db.ClosePullRequest(ctx, pr.ID, time.Now()); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("close merged error = %v, want ErrStateConflict", err)
	}

	got, err := db.GetPullRequest(ctx, repo.ID, pr.Number)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.PullRequestStateMerged || got.MergeCommitSHA != "deadbeef" {
		t.Fatalf("pull request after merges = %s %q", got.State, got.MergeCommitSHA)
	}
	if got.MergedAt == nil || !got.MergedAt.Equal(mergedAt) {
		t.Fatalf("merged_at = %v, want %v", got.MergedAt, mergedAt)
	}
	if got.MergedByID == nil || *got.MergedByID != octo.ID {
		t.Fatalf("merged_by_id = %v, want %d", got.MergedByID, octo.ID)
	}
}

func TestSQLiteStarToggleRestoresCount(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	bob := mustCreateUser(t, ctx, db, "bob")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)

	if err := db.AddStar(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.AddStar(ctx, repo.ID, bob.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate star error = %v, want ErrDuplicate", err)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).StarsCount; got != 1 {
		t.Fatalf("stars_count = %d, want 1", got)
	}
	starred, err := db.ListStarredRepositories(ctx, bob.ID, RepoViewer{UserID: bob.ID}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(starred) != 1 || starred[0].ID != repo.ID {
		t.Fatalf("starred repositories = %+v", starred)
	}
	if err := db.RemoveStar(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).StarsCount; got != 0 {
		t.Fatalf("stars_count after unstar = %d, want 0", got)
	}

	if err := db.AddWatch(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if got := reloadRepo(t, ctx, db, repo.ID).WatchersCount; got != 1 {
		t.Fatalf("watchers_count = %d, want 1", got)
	}
}

func TestSQLiteCommentTargetsAndCounts(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)
	issue := &models.Issue{RepoID: repo.ID, Title: "Bug", AuthorID: octo.ID}
	if err := db.CreateIssue(ctx, issue); err != nil {
		t.Fatal(err)
	}
	pr := &models.PullRequest{RepoID: repo.ID, Title: "Fix", AuthorID: octo.ID, HeadBranch: "fix", BaseBranch: "main"}
	if err := db.CreatePullRequest(ctx, pr); err != nil {
		t.Fatal(err)
	}

	if err := db.CreateComment(ctx, &models.Comment{AuthorID: octo.ID, Body: "orphan"}); !errors.Is(err, ErrCommentTarget) {
		t.Fatalf("comment without target error = %v, want ErrCommentTarget", err)
	}
	if err := db.CreateComment(ctx, &models.Comment{IssueID: &issue.ID, PullRequestID: &pr.ID, AuthorID: octo.ID, Body: "both"}); !errors.Is(err, ErrCommentTarget) {
		t.Fatalf("comment with two targets error = %v, want ErrCommentTarget", err)
	}

	c := &models.Comment{IssueID: &issue.ID, AuthorID: octo.ID, Body: "looking"}
	if err := db.CreateComment(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetIssue(ctx, repo.ID, issue.Number)
	if err != nil {
		t.Fatal(err)
	}
	if got.CommentsCount != 1 {
		t.Fatalf("comments_count = %d, want 1", got.CommentsCount)
	}
	if err := db.DeleteComment(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	got, err = db.GetIssue(ctx, repo.ID, issue.Number)
	if err != nil {
		t.Fatal(err)
	}
	if got.CommentsCount != 0 {
		t.Fatalf("comments_count after delete = %d, want 0", got.CommentsCount)
	}
}

func TestSQLiteReviewThreadFollowsReplyChain(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)
	pr := &models.PullRequest{RepoID: repo.ID, Title: "Fix", AuthorID: octo.ID, HeadBranch: "fix", BaseBranch: "main"}
	if err := db.CreatePullRequest(ctx, pr); err != nil {
		t.Fatal(err)
	}
	review := &models.Review{PullRequestID: pr.ID, ReviewerID: octo.ID, State: models.ReviewStatePending}
	if err := db.CreateReview(ctx, review); err != nil {
		t.Fatal(err)
	}

	root := &models.ReviewComment{ReviewID: review.ID, PullRequestID: pr.ID, AuthorID: octo.ID, Body: "nit", Path: "main.go", Line: 3}
	if err := db.CreateReviewComment(ctx, root); err != nil {
		t.Fatal(err)
	}
	reply := &models.ReviewComment{ReviewID: review.ID, PullRequestID: pr.ID, AuthorID: octo.ID, Body: "fixed", Path: "main.go", Line: 3, InReplyToID: &root.ID}
	if err := db.CreateReviewComment(ctx, reply); err != nil {
		t.Fatal(err)
	}
	nested := &models.ReviewComment{ReviewID: review.ID, PullRequestID: pr.ID, AuthorID: octo.ID, Body: "thanks", Path: "main.go", Line: 3, InReplyToID: &reply.ID}
	if err := db.CreateReviewComment(ctx, nested); err != nil {
		t.Fatal(err)
	}
	other := &models.ReviewComment{ReviewID: review.ID, PullRequestID: pr.ID, AuthorID: octo.ID, Body: "unrelated", Path: "util.go", Line: 9}
	if err := db.CreateReviewComment(ctx, other); err != nil {
		t.Fatal(err)
	}

	thread, err := db.ListReviewThread(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 3 {
		t.Fatalf("thread length = %d, want 3", len(thread))
	}
	for i, want := range []int64{root.ID, reply.ID, nested.ID} {
		if thread[i].ID != want {
			t.Fatalf("thread[%d] = %d, want %d", i, thread[i].ID, want)
		}
	}

	submitted := time.Now().UTC()
	if err := db.TransitionReview(ctx, review.ID, []string{models.ReviewStatePending}, models.ReviewStateApproved, &submitted); err != nil {
		t.Fatal(err)
	}
	if err := db.TransitionReview(ctx, review.ID, []string{models.ReviewStatePending}, models.ReviewStateCommented, &submitted); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("resubmit error = %v, want ErrStateConflict", err)
	}
}

func TestSQLiteReconcileRepairsDriftedCounters(t *testing.T) {
	ctx, db := openTestSQLite(t)
	octo := mustCreateUser(t, ctx, db, "octo")
	bob := mustCreateUser(t, ctx, db, "bob")
	repo := mustCreateRepo(t, ctx, db, octo, "hello", false)
	if err := db.AddStar(ctx, repo.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.FollowUser(ctx, bob.ID, octo.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := db.db.ExecContext(ctx, `UPDATE repositories SET stars_count = 7, open_issues_count = 2 WHERE id = ?`, repo.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.db.ExecContext(ctx, `UPDATE users SET followers_count = 0 WHERE id = ?`, octo.ID); err != nil {
		t.Fatal(err)
	}

	repairs, err := db.ReconcileRepositoryCounters(ctx, repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(repairs) != 2 {
		t.Fatalf("repository repairs = %+v, want 2 entries", repairs)
	}
	got := reloadRepo(t, ctx, db, repo.ID)
	if got.StarsCount != 1 || got.OpenIssuesCount != 0 {
		t.Fatalf("after reconcile stars=%d open_issues=%d, want 1 and 0", got.StarsCount, got.OpenIssuesCount)
	}

	userRepairs, err := db.ReconcileUserCounters(ctx, octo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(userRepairs) != 1 || userRepairs[0].Counter != "followers_count" || userRepairs[0].After != 1 {
		t.Fatalf("user repairs = %+v", userRepairs)
	}

	again, err := db.ReconcileRepositoryCounters(ctx, repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second reconcile should be a no-op, got %+v", again)
	}
}

func TestSQLiteReconcileRacingStarsKeepsEveryStar(t *testing.T) {
	ctx, db := openTestSQLite(t)
	testReconcileRacingStars(t, ctx, db, "")
}

// testReconcileRacingStars stars a repository from many users while repository
// reconciles run alongside, then expects the cached count to match the rows.
func testReconcileRacingStars(t *testing.T, ctx context.Context, db DB, suffix string) {
	t.Helper()
	owner := mustCreateUser(t, ctx, db, "owner"+suffix)
	repo := mustCreateRepo(t, ctx, db, owner, "racing", false)

	const n = 10
	stargazers := make([]*models.User, n)
	for i := range stargazers {
		stargazers[i] = mustCreateUser(t, ctx, db, fmt.Sprintf("gazer%d%s", i, suffix))
	}

	errCh := make(chan error, 2*n)
	var wg sync.WaitGroup
	for _, u := range stargazers {
		wg.Add(2)
		go func(userID int64) {
			defer wg.Done()
			errCh <- db.AddStar(ctx, repo.ID, userID)
		}(u.ID)
		go func() {
			defer wg.Done()
			_, err := db.ReconcileRepositoryCounters(ctx, repo.ID)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent star/reconcile: %v", err)
		}
	}

	if got := reloadRepo(t, ctx, db, repo.ID).StarsCount; got != n {
		t.Fatalf("stars_count = %d, want %d", got, n)
	}
	repairs, err := db.ReconcileRepositoryCounters(ctx, repo.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(repairs) != 0 {
		t.Fatalf("counters drifted under concurrency: %+v", repairs)
	}
}

func TestSQLiteAccessTokenHashIsUnique(t *testing.T) {
	ctx, db := openTestSQLite(t)
	alice := mustCreateUser(t, ctx, db, "alice")
	bob := mustCreateUser(t, ctx, db, "bob")

	tok := &models.AccessToken{UserID: alice.ID, Name: "ci", TokenHash: "abc", TokenPrefix: "chp_abc", Scopes: []string{"repo"}}
	if err := db.CreateAccessToken(ctx, tok); err != nil {
		t.Fatal(err)
	}
	dup := &models.AccessToken{UserID: bob.ID, Name: "ci", TokenHash: "abc", TokenPrefix: "chp_abc"}
	if err := db.CreateAccessToken(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate token hash error = %v, want ErrDuplicate", err)
	}
	got, err := db.GetAccessTokenByHash(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != alice.ID || len(got.Scopes) != 1 || got.Scopes[0] != "repo" {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	tests := []struct {
		name  string
		d     dialect
		query string
		want  string
	}{
		{name: "sqlite untouched", d: dialectSQLite, query: "SELECT ? , ?", want: "SELECT ? , ?"},
		{name: "postgres numbered", d: dialectPostgres, query: "UPDATE t SET a = ? WHERE id = ?", want: "UPDATE t SET a = $1 WHERE id = $2"},
		{name: "postgres no params", d: dialectPostgres, query: "SELECT 1", want: "SELECT 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.rebind(tc.query); got != tc.want {
				t.Fatalf("rebind(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}
