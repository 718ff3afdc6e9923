package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/codehub/internal/models"
)

func TestIssueNumberingAndOpenCount(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	env.createRepo(t, octo, "hello", false)

	for i, title := range []string{"first", "second", "third"} {
		issue, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: title})
		require.NoError(t, err)
		require.Equal(t, i+1, issue.Number)
		require.Equal(t, models.IssueStateOpen, issue.State)
	}

	closed, err := env.svc.Issues.Close(env.ctx, octo, "octo", "hello", 2)
	require.NoError(t, err)
	require.Equal(t, models.IssueStateClosed, closed.State)
	require.NotNil(t, closed.ClosedAt)

	repo, err := env.svc.Repos.Get(env.ctx, "octo", "hello", octo)
	require.NoError(t, err)
	require.Equal(t, 2, repo.OpenIssuesCount)

	_, err = env.svc.Issues.Close(env.ctx, octo, "octo", "hello", 2)
	require.ErrorIs(t, err, ErrInvalidState)

	reopened, err := env.svc.Issues.Reopen(env.ctx, octo, "octo", "hello", 2)
	require.NoError(t, err)
	require.Nil(t, reopened.ClosedAt)

	repo, err = env.svc.Repos.Get(env.ctx, "octo", "hello", octo)
	require.NoError(t, err)
	require.Equal(t, 3, repo.OpenIssuesCount)

	open, err := env.svc.Issues.List(env.ctx, "octo", "hello", "open", nil, 1, 30)
	require.NoError(t, err)
	require.Len(t, open, 3)
	require.Equal(t, 3, open[0].Number, "newest first")

	_, err = env.svc.Issues.List(env.ctx, "octo", "hello", "bogus", nil, 1, 30)
	require.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentIssueCreationAssignsDistinctNumbers(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	env.createRepo(t, octo, "hello", false)

	const n = 12
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issue, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: "race"})
			if err != nil {
				errs <- err
				return
			}
			numbers <- issue.Number
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[int]bool)
	for num := range numbers {
		require.False(t, seen[num], "duplicate number %d", num)
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		require.True(t, seen[i], "missing number %d", i)
	}
}

func TestIssueAuthorMayCloseButNotOthers(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	eve := env.register(t, "eve")
	env.createRepo(t, octo, "hello", false)

	issue, err := env.svc.Issues.Create(env.ctx, bob, "octo", "hello", IssueInput{Title: "bug"})
	require.NoError(t, err)

	_, err = env.svc.Issues.Close(env.ctx, eve, "octo", "hello", issue.Number)
	require.ErrorIs(t, err, ErrForbidden)

	title := "renamed by eve"
	_, err = env.svc.Issues.Edit(env.ctx, eve, "octo", "hello", issue.Number, IssueUpdate{Title: &title})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Issues.Close(env.ctx, bob, "octo", "hello", issue.Number)
	require.NoError(t, err)
	_, err = env.svc.Issues.Reopen(env.ctx, octo, "octo", "hello", issue.Number)
	require.NoError(t, err)
}

func TestIssueCommentsCountAndLocking(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	env.createRepo(t, octo, "hello", false)

	issue, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: "discuss"})
	require.NoError(t, err)

	c, err := env.svc.Issues.Comment(env.ctx, bob, "octo", "hello", issue.Number, "+1")
	require.NoError(t, err)
	_, err = env.svc.Issues.Comment(env.ctx, bob, "octo", "hello", issue.Number, "   ")
	require.ErrorIs(t, err, ErrValidation)

	got, err := env.svc.Issues.Get(env.ctx, "octo", "hello", issue.Number, nil)
	require.NoError(t, err)
	require.Equal(t, 1, got.CommentsCount)

	edited, err := env.svc.Issues.EditComment(env.ctx, bob, "octo", "hello", c.ID, "+2")
	require.NoError(t, err)
	require.Equal(t, "+2", edited.Body)

	locked := true
	_, err = env.svc.Issues.Edit(env.ctx, octo, "octo", "hello", issue.Number, IssueUpdate{Locked: &locked})
	require.NoError(t, err)
	_, err = env.svc.Issues.Comment(env.ctx, bob, "octo", "hello", issue.Number, "hello?")
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = env.svc.Issues.Comment(env.ctx, octo, "octo", "hello", issue.Number, "locked, sorry")
	require.NoError(t, err)

	require.NoError(t, env.svc.Issues.DeleteComment(env.ctx, bob, "octo", "hello", c.ID))
	got, err = env.svc.Issues.Get(env.ctx, "octo", "hello", issue.Number, nil)
	require.NoError(t, err)
	require.Equal(t, 1, got.CommentsCount)
}

func TestIssueLabelsAndAssignees(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	env.createRepo(t, octo, "hello", false)

	_, err := env.svc.Labels.Create(env.ctx, octo, "octo", "hello", LabelInput{Name: "bug", Color: "#D73A4A"})
	require.NoError(t, err)
	_, err = env.svc.Labels.Create(env.ctx, octo, "octo", "hello", LabelInput{Name: "bug", Color: "ffffff"})
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = env.svc.Labels.Create(env.ctx, octo, "octo", "hello", LabelInput{Name: "ugly", Color: "red"})
	require.ErrorIs(t, err, ErrValidation)

	issue, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{
		Title:     "crash",
		Labels:    []string{"bug"},
		Assignees: []string{"bob"},
	})
	require.NoError(t, err)

	labels, err := env.svc.Issues.ListLabels(env.ctx, "octo", "hello", issue.Number, nil)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, "d73a4a", labels[0].Color)

	// Adding the same label twice is a no-op.
	labels, err = env.svc.Issues.AddLabels(env.ctx, octo, "octo", "hello", issue.Number, []string{"bug"})
	require.NoError(t, err)
	require.Len(t, labels, 1)

	assignees, err := env.svc.Issues.ListAssignees(env.ctx, "octo", "hello", issue.Number, nil)
	require.NoError(t, err)
	require.Len(t, assignees, 1)
	require.Equal(t, bob.ID, assignees[0].ID)

	_, err = env.svc.Issues.AddLabels(env.ctx, bob, "octo", "hello", issue.Number, []string{"bug"})
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.svc.Labels.Delete(env.ctx, octo, "octo", "hello", "bug"))
	labels, err = env.svc.Issues.ListLabels(env.ctx, "octo", "hello", issue.Number, nil)
	require.NoError(t, err)
	require.Empty(t, labels)
}

func TestIssueCreateRejectsUnknownAddOnsWithoutSideEffects(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	env.register(t, "carol")
	env.createRepo(t, octo, "hello", true)

	_, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: "Bug", Labels: []string{"nope"}})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: "Bug", Assignees: []string{"carol"}})
	require.ErrorIs(t, err, ErrValidation)

	issues, err := env.svc.Issues.List(env.ctx, "octo", "hello", "all", octo, 1, 30)
	require.NoError(t, err)
	require.Empty(t, issues)

	repo, err := env.svc.Repos.Get(env.ctx, "octo", "hello", octo)
	require.NoError(t, err)
	require.Equal(t, 0, repo.OpenIssuesCount)

	issue, err := env.svc.Issues.Create(env.ctx, octo, "octo", "hello", IssueInput{Title: "Bug"})
	require.NoError(t, err)
	require.Equal(t, 1, issue.Number)
}
