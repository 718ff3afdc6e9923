package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// DB defines the data access interface. Implemented by SQLite and PostgreSQL backends.
//
// Lookups of absent rows return sql.ErrNoRows. Uniqueness violations return an
// error wrapping ErrDuplicate. Compare-and-set state updates that find the row
// in an unexpected state return ErrStateConflict.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	DBStats() sql.DBStats

	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)

	// Follows
	FollowUser(ctx context.Context, followerID, followingID int64) error
	UnfollowUser(ctx context.Context, followerID, followingID int64) error
	IsFollowing(ctx context.Context, followerID, followingID int64) (bool, error)
	ListFollowers(ctx context.Context, userID int64, limit, offset int) ([]models.User, error)
	ListFollowing(ctx context.Context, userID int64, limit, offset int) ([]models.User, error)

	// Credentials
	CreateSSHKey(ctx context.Context, key *models.SSHKey) error
	ListSSHKeys(ctx context.Context, userID int64) ([]models.SSHKey, error)
	GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error)
	DeleteSSHKey(ctx context.Context, id, userID int64) error
	CreateAccessToken(ctx context.Context, token *models.AccessToken) error
	GetAccessTokenByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error)
	ListAccessTokens(ctx context.Context, userID int64) ([]models.AccessToken, error)
	TouchAccessToken(ctx context.Context, id int64, at time.Time) error
	DeleteAccessToken(ctx context.Context, id, userID int64) error

	// Organizations
	CreateOrg(ctx context.Context, org *models.Org) error
	GetOrg(ctx context.Context, name string) (*models.Org, error)
	GetOrgByID(ctx context.Context, id int64) (*models.Org, error)
	ListUserOrgs(ctx context.Context, userID int64) ([]models.Org, error)
	UpdateOrg(ctx context.Context, org *models.Org) error
	DeleteOrg(ctx context.Context, id int64) error
	AddOrgMember(ctx context.Context, m *models.OrgMember) error
	UpdateOrgMemberRole(ctx context.Context, orgID, userID int64, role string) error
	GetOrgMember(ctx context.Context, orgID, userID int64) (*models.OrgMember, error)
	ListOrgMembers(ctx context.Context, orgID int64) ([]models.OrgMember, error)
	RemoveOrgMember(ctx context.Context, orgID, userID int64) error

	// Repositories
	CreateRepository(ctx context.Context, repo *models.Repository) error
	ForkRepository(ctx context.Context, parentID int64, fork *models.Repository) error
	GetRepository(ctx context.Context, ownerName, repoName string) (*models.Repository, error)
	GetRepositoryByID(ctx context.Context, id int64) (*models.Repository, error)
	ListUserRepositories(ctx context.Context, userID int64, includePrivate bool) ([]models.Repository, error)
	ListOrgRepositories(ctx context.Context, orgID int64, includePrivate bool) ([]models.Repository, error)
	ListPublicRepositories(ctx context.Context, limit, offset int) ([]models.Repository, error)
	ListForks(ctx context.Context, parentID int64) ([]models.Repository, error)
	ListRepositoryIDs(ctx context.Context) ([]int64, error)
	UpdateRepository(ctx context.Context, repo *models.Repository) error
	DeleteRepository(ctx context.Context, id int64) error

	// Collaborators
	AddCollaborator(ctx context.Context, c *models.Collaborator) error
	SetCollaboratorPermission(ctx context.Context, repoID, userID int64, permission string) error
	GetCollaborator(ctx context.Context, repoID, userID int64) (*models.Collaborator, error)
	ListCollaborators(ctx context.Context, repoID int64) ([]models.Collaborator, error)
	RemoveCollaborator(ctx context.Context, repoID, userID int64) error

	// Branches, commits and files
	CreateBranch(ctx context.Context, b *models.Branch) error
	GetBranch(ctx context.Context, repoID int64, name string) (*models.Branch, error)
	ListBranches(ctx context.Context, repoID int64) ([]models.Branch, error)
	UpdateBranchCommit(ctx context.Context, repoID int64, name, commitSHA string, at time.Time) error
	DeleteBranch(ctx context.Context, repoID int64, name string) error
	CreateCommit(ctx context.Context, c *models.Commit) error
	GetCommit(ctx context.Context, repoID int64, sha string) (*models.Commit, error)
	ListCommits(ctx context.Context, repoID int64, limit, offset int) ([]models.Commit, error)
	UpsertFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, branchID int64, path string) (*models.File, error)
	ListFiles(ctx context.Context, branchID int64) ([]models.File, error)

	// Numbering
	NextNumber(ctx context.Context, repoID int64, kind models.NumberKind) (int, error)

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, repoID int64, number int) (*models.Issue, error)
	ListIssues(ctx context.Context, repoID int64, state string, limit, offset int) ([]models.Issue, error)
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	SetIssueState(ctx context.Context, issueID int64, state string, at time.Time) error
	AddIssueAssignee(ctx context.Context, issueID, userID int64) error
	RemoveIssueAssignee(ctx context.Context, issueID, userID int64) error
	ListIssueAssignees(ctx context.Context, issueID int64) ([]models.User, error)

	// Pull Requests
	CreatePullRequest(ctx context.Context, pr *models.PullRequest) error
	GetPullRequest(ctx context.Context, repoID int64, number int) (*models.PullRequest, error)
	ListPullRequests(ctx context.Context, repoID int64, state string, limit, offset int) ([]models.PullRequest, error)
	UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error
	ClosePullRequest(ctx context.Context, prID int64, at time.Time) error
	MergePullRequest(ctx context.Context, prID, mergedByID int64, mergeCommitSHA string, at time.Time) error
	AddPullRequestAssignee(ctx context.Context, prID, userID int64) error
	RemovePullRequestAssignee(ctx context.Context, prID, userID int64) error
	ListPullRequestAssignees(ctx context.Context, prID int64) ([]models.User, error)
	AddPullRequestReviewer(ctx context.Context, prID, userID int64) error
	RemovePullRequestReviewer(ctx context.Context, prID, userID int64) error
	ListPullRequestReviewers(ctx context.Context, prID int64) ([]models.User, error)

	// Labels
	CreateLabel(ctx context.Context, l *models.Label) error
	GetLabel(ctx context.Context, repoID int64, name string) (*models.Label, error)
	ListLabels(ctx context.Context, repoID int64) ([]models.Label, error)
	UpdateLabel(ctx context.Context, l *models.Label) error
	DeleteLabel(ctx context.Context, id int64) error
	AddIssueLabel(ctx context.Context, issueID, labelID int64) error
	RemoveIssueLabel(ctx context.Context, issueID, labelID int64) error
	ListIssueLabels(ctx context.Context, issueID int64) ([]models.Label, error)
	AddPullRequestLabel(ctx context.Context, prID, labelID int64) error
	RemovePullRequestLabel(ctx context.Context, prID, labelID int64) error
	ListPullRequestLabels(ctx context.Context, prID int64) ([]models.Label, error)

	// Comments
	CreateComment(ctx context.Context, c *models.Comment) error
	GetComment(ctx context.Context, id int64) (*models.Comment, error)
	CommentRepoID(ctx context.Context, id int64) (int64, error)
	ListIssueComments(ctx context.Context, issueID int64, limit, offset int) ([]models.Comment, error)
	ListPullRequestComments(ctx context.Context, prID int64, limit, offset int) ([]models.Comment, error)
	UpdateComment(ctx context.Context, id int64, body string, at time.Time) error
	DeleteComment(ctx context.Context, id int64) error

	// Reviews
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id int64) (*models.Review, error)
	ListReviews(ctx context.Context, prID int64) ([]models.Review, error)
	TransitionReview(ctx context.Context, id int64, from []string, to string, submittedAt *time.Time) error
	CreateReviewComment(ctx context.Context, c *models.ReviewComment) error
	GetReviewComment(ctx context.Context, id int64) (*models.ReviewComment, error)
	ListReviewComments(ctx context.Context, prID int64) ([]models.ReviewComment, error)
	ListReviewThread(ctx context.Context, rootID int64) ([]models.ReviewComment, error)

	// Stars and watches
	AddStar(ctx context.Context, repoID, userID int64) error
	RemoveStar(ctx context.Context, repoID, userID int64) error
	IsStarred(ctx context.Context, repoID, userID int64) (bool, error)
	ListStargazers(ctx context.Context, repoID int64, limit, offset int) ([]models.User, error)
	ListStarredRepositories(ctx context.Context, userID int64, viewer RepoViewer, limit, offset int) ([]models.Repository, error)
	AddWatch(ctx context.Context, repoID, userID int64) error
	RemoveWatch(ctx context.Context, repoID, userID int64) error
	IsWatching(ctx context.Context, repoID, userID int64) (bool, error)
	ListWatchers(ctx context.Context, repoID int64, limit, offset int) ([]models.User, error)

	// Releases
	CreateRelease(ctx context.Context, r *models.Release) error
	GetRelease(ctx context.Context, repoID int64, tagName string) (*models.Release, error)
	GetReleaseByID(ctx context.Context, id int64) (*models.Release, error)
	ListReleases(ctx context.Context, repoID int64, includeDrafts bool) ([]models.Release, error)
	UpdateRelease(ctx context.Context, r *models.Release) error
	DeleteRelease(ctx context.Context, id int64) error
	CreateReleaseAsset(ctx context.Context, a *models.ReleaseAsset) error
	GetReleaseAsset(ctx context.Context, id int64) (*models.ReleaseAsset, error)
	ListReleaseAssets(ctx context.Context, releaseID int64) ([]models.ReleaseAsset, error)
	IncrementAssetDownloads(ctx context.Context, id int64) error
	DeleteReleaseAsset(ctx context.Context, id int64) error
	ListRepositoryAssetKeys(ctx context.Context, repoID int64) ([]string, error)

	// Webhooks
	CreateWebhook(ctx context.Context, hook *models.Webhook) error
	GetWebhook(ctx context.Context, repoID, id int64) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, repoID int64) ([]models.Webhook, error)
	UpdateWebhook(ctx context.Context, hook *models.Webhook) error
	DeleteWebhook(ctx context.Context, repoID, id int64) error

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
	SetNotificationUnread(ctx context.Context, id, userID int64, unread bool) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)

	// Activity
	CreateActivity(ctx context.Context, a *models.Activity) error
	ListUserActivities(ctx context.Context, userID int64, includePrivate bool, limit, offset int) ([]models.Activity, error)
	ListRepositoryActivities(ctx context.Context, repoID int64, limit, offset int) ([]models.Activity, error)
	ListDashboardActivities(ctx context.Context, userID int64, limit, offset int) ([]models.Activity, error)

	// Counter reconciliation
	ReconcileUserCounters(ctx context.Context, userID int64) ([]models.CounterRepair, error)
	ReconcileRepositoryCounters(ctx context.Context, repoID int64) ([]models.CounterRepair, error)
}
