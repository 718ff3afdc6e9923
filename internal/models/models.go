package models

import (
	"encoding/json"
	"time"
)

const (
	IssueStateOpen   = "open"
	IssueStateClosed = "closed"

	PullRequestStateOpen   = "open"
	PullRequestStateClosed = "closed"
	PullRequestStateMerged = "merged"

	ReviewStatePending          = "pending"
	ReviewStateCommented        = "commented"
	ReviewStateApproved         = "approved"
	ReviewStateChangesRequested = "changes_requested"
	ReviewStateDismissed        = "dismissed"

	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"

	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// NumberKind selects the per-repository numbering sequence.
type NumberKind string

const (
	NumberKindIssue       NumberKind = "issue"
	NumberKindPullRequest NumberKind = "pull_request"
)

func IsIssueState(state string) bool {
	return state == IssueStateOpen || state == IssueStateClosed
}

func IsPullRequestState(state string) bool {
	switch state {
	case PullRequestStateOpen, PullRequestStateClosed, PullRequestStateMerged:
		return true
	}
	return false
}

func IsReviewState(state string) bool {
	switch state {
	case ReviewStatePending, ReviewStateCommented, ReviewStateApproved, ReviewStateChangesRequested, ReviewStateDismissed:
		return true
	}
	return false
}

func IsOrgRole(role string) bool {
	switch role {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember:
		return true
	}
	return false
}

func IsPermission(perm string) bool {
	return permissionRank(perm) > 0
}

// PermissionAtLeast reports whether have grants at least want (read < write < admin).
func PermissionAtLeast(have, want string) bool {
	h := permissionRank(have)
	return h > 0 && h >= permissionRank(want)
}

func permissionRank(perm string) int {
	switch perm {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

type User struct {
	ID                int64     `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Name              string    `json:"name"`
	Bio               string    `json:"bio"`
	Location          string    `json:"location"`
	Company           string    `json:"company"`
	Website           string    `json:"website"`
	TwitterUsername   string    `json:"twitter_username"`
	IsAdmin           bool      `json:"is_admin"`
	FollowersCount    int       `json:"followers_count"`
	FollowingCount    int       `json:"following_count"`
	PublicReposCount  int       `json:"public_repos_count"`
	PrivateReposCount int       `json:"private_repos_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type UserFollow struct {
	FollowerID  int64     `json:"follower_id"`
	FollowingID int64     `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type SSHKey struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Key         string     `json:"key"`
	Fingerprint string     `json:"fingerprint"`
	KeyType     string     `json:"key_type"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

type AccessToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Name        string     `json:"name"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Scopes      []string   `json:"scopes"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type Org struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	Website     string    `json:"website"`
	Location    string    `json:"location"`
	Email       string    `json:"email"`
	OwnerID     int64     `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrgMember struct {
	OrgID    int64     `json:"org_id"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role"` // "owner", "admin", "member"
	JoinedAt time.Time `json:"joined_at"`
}

type Repository struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	OwnerName       string     `json:"owner_name"`
	OrgID           *int64     `json:"org_id,omitempty"`
	ParentID        *int64     `json:"parent_id,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	IsPrivate       bool       `json:"is_private"`
	IsFork          bool       `json:"is_fork"`
	DefaultBranch   string     `json:"default_branch"`
	Language        string     `json:"language"`
	Homepage        string     `json:"homepage"`
	Topics          []string   `json:"topics"`
	HasIssues       bool       `json:"has_issues"`
	Archived        bool       `json:"archived"`
	StarsCount      int        `json:"stars_count"`
	ForksCount      int        `json:"forks_count"`
	WatchersCount   int        `json:"watchers_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
}

func (r *Repository) FullName() string {
	return r.OwnerName + "/" + r.Name
}

type Collaborator struct {
	RepoID     int64     `json:"repo_id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Permission string    `json:"permission"` // "read", "write", "admin"
	AddedAt    time.Time `json:"added_at"`
}

type Branch struct {
	ID        int64     `json:"id"`
	RepoID    int64     `json:"repo_id"`
	Name      string    `json:"name"`
	CommitSHA string    `json:"commit_sha"`
	Protected bool      `json:"protected"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Commit struct {
	ID             int64     `json:"id"`
	RepoID         int64     `json:"repo_id"`
	SHA            string    `json:"sha"`
	AuthorID       *int64    `json:"author_id,omitempty"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	CommitterName  string    `json:"committer_name"`
	CommitterEmail string    `json:"committer_email"`
	Message        string    `json:"message"`
	ParentSHAs     []string  `json:"parent_shas"`
	TreeSHA        string    `json:"tree_sha"`
	Additions      int       `json:"additions"`
	Deletions      int       `json:"deletions"`
	CommittedAt    time.Time `json:"committed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type File struct {
	ID           int64     `json:"id"`
	RepoID       int64     `json:"repo_id"`
	BranchID     int64     `json:"branch_id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	SHA          string    `json:"sha"`
	ContentType  string    `json:"content_type"`
	IsBinary     bool      `json:"is_binary"`
	LastCommitID *int64    `json:"last_commit_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Issue struct {
	ID            int64      `json:"id"`
	RepoID        int64      `json:"repo_id"`
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	State         string     `json:"state"` // "open", "closed"
	AuthorID      int64      `json:"author_id"`
	AuthorName    string     `json:"author_name,omitempty"`
	Locked        bool       `json:"locked"`
	CommentsCount int        `json:"comments_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

type PullRequest struct {
	ID             int64      `json:"id"`
	RepoID         int64      `json:"repo_id"`
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	State          string     `json:"state"` // "open", "closed", "merged"
	AuthorID       int64      `json:"author_id"`
	AuthorName     string     `json:"author_name,omitempty"`
	HeadRepoID     *int64     `json:"head_repo_id,omitempty"`
	HeadBranch     string     `json:"head_branch"`
	BaseBranch     string     `json:"base_branch"`
	HeadSHA        string     `json:"head_sha"`
	BaseSHA        string     `json:"base_sha"`
	Draft          bool       `json:"draft"`
	Locked         bool       `json:"locked"`
	MergedByID     *int64     `json:"merged_by_id,omitempty"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	MergeCommitSHA string     `json:"merge_commit_sha,omitempty"`
	CommentsCount  int        `json:"comments_count"`
	CommitsCount   int        `json:"commits_count"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
	ChangedFiles   int        `json:"changed_files"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

type Label struct {
	ID          int64     `json:"id"`
	RepoID      int64     `json:"repo_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	AddedAt     time.Time `json:"added_at,omitzero"` // set when listed through an issue or PR
}

// Comment belongs to exactly one of an issue or a pull request.
type Comment struct {
	ID            int64     `json:"id"`
	IssueID       *int64    `json:"issue_id,omitempty"`
	PullRequestID *int64    `json:"pull_request_id,omitempty"`
	AuthorID      int64     `json:"author_id"`
	AuthorName    string    `json:"author_name,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Review struct {
	ID            int64      `json:"id"`
	PullRequestID int64      `json:"pull_request_id"`
	ReviewerID    int64      `json:"reviewer_id"`
	ReviewerName  string     `json:"reviewer_name,omitempty"`
	Body          string     `json:"body"`
	State         string     `json:"state"`
	CommitSHA     string     `json:"commit_sha"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ReviewComment struct {
	ID            int64     `json:"id"`
	ReviewID      int64     `json:"review_id"`
	PullRequestID int64     `json:"pull_request_id"`
	AuthorID      int64     `json:"author_id"`
	AuthorName    string    `json:"author_name,omitempty"`
	Body          string    `json:"body"`
	Path          string    `json:"path"`
	Position      int       `json:"position"`
	Line          int       `json:"line"`
	CommitSHA     string    `json:"commit_sha"`
	InReplyToID   *int64    `json:"in_reply_to_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Release struct {
	ID              int64          `json:"id"`
	RepoID          int64          `json:"repo_id"`
	TagName         string         `json:"tag_name"`
	TargetCommitish string         `json:"target_commitish"`
	Name            string         `json:"name"`
	Body            string         `json:"body"`
	Draft           bool           `json:"draft"`
	Prerelease      bool           `json:"prerelease"`
	AuthorID        int64          `json:"author_id"`
	CreatedAt       time.Time      `json:"created_at"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	Assets          []ReleaseAsset `json:"assets,omitempty"`
}

type ReleaseAsset struct {
	ID            int64     `json:"id"`
	ReleaseID     int64     `json:"release_id"`
	Name          string    `json:"name"`
	Label         string    `json:"label"`
	ContentType   string    `json:"content_type"`
	Size          int64     `json:"size"`
	DownloadCount int       `json:"download_count"`
	StorageKey    string    `json:"-"`
	UploaderID    int64     `json:"uploader_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type Webhook struct {
	ID          int64     `json:"id"`
	RepoID      int64     `json:"repo_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Secret      string    `json:"-"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	NotificationTypeIssue       = "issue"
	NotificationTypePullRequest = "pull_request"
	NotificationTypeCommit      = "commit"
	NotificationTypeRelease     = "release"
	NotificationTypeMention     = "mention"
)

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RepoID    int64     `json:"repo_id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Reason    string    `json:"reason"`
	URL       string    `json:"url"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	EventPush        = "push"
	EventCreate      = "create"
	EventDelete      = "delete"
	EventFork        = "fork"
	EventStar        = "star"
	EventWatch       = "watch"
	EventIssue       = "issue"
	EventPullRequest = "pull_request"
	EventRelease     = "release"
	EventFollow      = "follow"
)

type Activity struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	EventType string          `json:"event_type"`
	RepoID    *int64          `json:"repo_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Public    bool            `json:"public"`
	CreatedAt time.Time       `json:"created_at"`
}

// CounterRepair records one denormalized counter corrected by reconciliation.
type CounterRepair struct {
	Entity   string `json:"entity"` // "user" or "repository"
	EntityID int64  `json:"entity_id"`
	Counter  string `json:"counter"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
}
