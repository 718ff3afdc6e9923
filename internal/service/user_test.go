package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/codehub/internal/auth"
	"github.com/odvcencio/codehub/internal/models"
)

func TestFollowRules(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	env.register(t, "bob")

	require.NoError(t, env.svc.Users.Follow(env.ctx, alice, "bob"))
	require.ErrorIs(t, env.svc.Users.Follow(env.ctx, alice, "bob"), ErrDuplicate)
	require.ErrorIs(t, env.svc.Users.Follow(env.ctx, alice, "alice"), ErrValidation)
	require.ErrorIs(t, env.svc.Users.Follow(env.ctx, nil, "bob"), ErrForbidden)

	bob, err := env.svc.Users.Get(env.ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, bob.FollowersCount)
	a, err := env.svc.Users.Get(env.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, a.FollowingCount)

	require.NoError(t, env.svc.Users.Unfollow(env.ctx, alice, "bob"))
	require.ErrorIs(t, env.svc.Users.Unfollow(env.ctx, alice, "bob"), ErrNotFound)
	bob, err = env.svc.Users.Get(env.ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, bob.FollowersCount)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "octo")

	_, err := env.svc.Users.Register(env.ctx, "octo", "other@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = env.svc.Users.Register(env.ctx, "other", "octo@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = env.svc.Users.Register(env.ctx, "-bad-", "bad@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Users.Register(env.ctx, "short", "short@example.com", "abc")
	require.ErrorIs(t, err, ErrValidation)

	token, user, err := env.svc.Users.Login(env.ctx, "octo@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "octo", user.Username)

	_, _, err = env.svc.Users.Login(env.ctx, "octo", "wrong-horse")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, _, err = env.svc.Users.Login(env.ctx, "nobody", "correct-horse")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAccessTokenResolvesToScopedClaims(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")

	plain, tok, err := env.svc.Users.CreateAccessToken(env.ctx, octo, "ci", []string{auth.ScopeWrite}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok.TokenPrefix)
	require.NotContains(t, tok.TokenHash, plain)

	claims, err := env.svc.Users.ResolveAccessToken(env.ctx, plain)
	require.NoError(t, err)
	require.Equal(t, octo.ID, claims.UserID)
	require.True(t, claims.HasScope(auth.ScopeRead))
	require.False(t, claims.HasScope(auth.ScopeAdmin))

	_, err = env.svc.Users.ResolveAccessToken(env.ctx, plain+"x")
	require.ErrorIs(t, err, auth.ErrInvalidToken)

	_, _, err = env.svc.Users.CreateAccessToken(env.ctx, octo, "root", []string{auth.ScopeAdmin}, 0)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.svc.Users.DeleteAccessToken(env.ctx, octo, tok.ID))
	_, err = env.svc.Users.ResolveAccessToken(env.ctx, plain)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestOrganizationMembershipGrantsRepositoryAccess(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	eve := env.register(t, "eve")

	_, err := env.svc.Orgs.Create(env.ctx, octo, OrgInput{Name: "acme"})
	require.NoError(t, err)
	_, err = env.svc.Orgs.Create(env.ctx, bob, OrgInput{Name: "octo"})
	require.ErrorIs(t, err, ErrDuplicate, "org names share the user namespace")

	repo, err := env.svc.Repos.Create(env.ctx, octo, CreateRepoInput{Name: "tools", Org: "acme", Private: true})
	require.NoError(t, err)
	require.Equal(t, "acme", repo.OwnerName)

	// Same name under the creator's own account is a different repository.
	env.createRepo(t, octo, "tools", false)

	_, err = env.svc.Repos.Get(env.ctx, "acme", "tools", bob)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.Orgs.AddMember(env.ctx, octo, "acme", "bob", models.OrgRoleMember)
	require.NoError(t, err)
	_, err = env.svc.Repos.Get(env.ctx, "acme", "tools", bob)
	require.NoError(t, err)
	_, err = env.svc.Repos.CreateBranch(env.ctx, bob, "acme", "tools", "topic", "", "")
	require.ErrorIs(t, err, ErrForbidden, "org members only read")

	_, err = env.svc.Orgs.AddMember(env.ctx, bob, "acme", "eve", models.OrgRoleMember)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.Repos.Get(env.ctx, "acme", "tools", eve)
	require.ErrorIs(t, err, ErrForbidden)

	require.ErrorIs(t, env.svc.Orgs.RemoveMember(env.ctx, octo, "acme", "octo"), ErrInvalidState, "last owner stays")
	require.ErrorIs(t, env.svc.Orgs.Delete(env.ctx, octo, "acme"), ErrInvalidState, "org still owns repositories")

	require.NoError(t, env.svc.Repos.Delete(env.ctx, octo, "acme", "tools"))
	require.NoError(t, env.svc.Orgs.Delete(env.ctx, octo, "acme"))
}

func TestNotificationsSkipActorAndReachWatchers(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	env.createRepo(t, octo, "hello", false)
	require.NoError(t, env.svc.Repos.Watch(env.ctx, carol, "octo", "hello"))

	issue, err := env.svc.Issues.Create(env.ctx, bob, "octo", "hello", IssueInput{Title: "ping"})
	require.NoError(t, err)
	_, err = env.svc.Issues.Comment(env.ctx, octo, "octo", "hello", issue.Number, "pong")
	require.NoError(t, err)

	bobCount, err := env.svc.Notifications.CountUnread(env.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, 1, bobCount, "bob hears about the comment on his issue only")

	octoCount, err := env.svc.Notifications.CountUnread(env.ctx, octo)
	require.NoError(t, err)
	require.Equal(t, 1, octoCount, "octo hears about the opened issue, not his own comment")

	carolList, err := env.svc.Notifications.List(env.ctx, carol, true, 1, 50)
	require.NoError(t, err)
	require.Len(t, carolList, 2)

	n, err := env.svc.Notifications.MarkAllRead(env.ctx, carol)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	carolCount, err := env.svc.Notifications.CountUnread(env.ctx, carol)
	require.NoError(t, err)
	require.Zero(t, carolCount)
}

func TestActivityFeedsHidePrivateEvents(t *testing.T) {
	env := newTestEnv(t)
	octo := env.register(t, "octo")
	bob := env.register(t, "bob")
	env.createRepo(t, octo, "public", false)
	env.createRepo(t, octo, "private", true)

	feed, err := env.svc.Activity.UserFeed(env.ctx, "octo", bob, 1, 50)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	own, err := env.svc.Activity.UserFeed(env.ctx, "octo", octo, 1, 50)
	require.NoError(t, err)
	require.Len(t, own, 2)

	require.NoError(t, env.svc.Users.Follow(env.ctx, bob, "octo"))
	dash, err := env.svc.Activity.Dashboard(env.ctx, bob, 1, 50)
	require.NoError(t, err)
	require.NotEmpty(t, dash)
	for _, a := range dash {
		require.True(t, a.Public || a.UserID == bob.ID)
	}
}
