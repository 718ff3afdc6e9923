package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

type PullService struct {
	db       database.DB
	access   *AccessService
	notify   *NotificationService
	activity *ActivityService
	metrics  *serviceMetrics
}

func NewPullService(db database.DB, access *AccessService, notify *NotificationService, activity *ActivityService) *PullService {
	return &PullService{db: db, access: access, notify: notify, activity: activity, metrics: getDefaultServiceMetrics()}
}

// PullInput opens a pull request from Head into Base. HeadRepo, as "owner/name",
// names a fork of the target repository holding the head branch.
type PullInput struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Head     string `json:"head"`
	Base     string `json:"base"`
	HeadRepo string `json:"head_repo"`
	Draft    bool   `json:"draft"`
}

func (s *PullService) Create(ctx context.Context, actor *Actor, owner, name string, in PullInput) (*models.PullRequest, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionOpen); err != nil {
		return nil, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	body, err := validateBody(in.Body, false)
	if err != nil {
		return nil, err
	}
	baseName := strings.TrimSpace(in.Base)
	if baseName == "" {
		baseName = repo.DefaultBranch
	}
	headName := strings.TrimSpace(in.Head)
	if headName == "" {
		return nil, invalid("head branch is required")
	}

	headRepo := repo
	if hr := strings.TrimSpace(in.HeadRepo); hr != "" && hr != repo.FullName() {
		ho, hn, ok := strings.Cut(hr, "/")
		if !ok {
			return nil, invalid("head_repo must be owner/name")
		}
		if headRepo, err = s.access.Repository(ctx, ho, hn, actor); err != nil {
			return nil, err
		}
		if headRepo.ParentID == nil || *headRepo.ParentID != repo.ID {
			return nil, invalid("%s is not a fork of %s", headRepo.FullName(), repo.FullName())
		}
	}
	if headRepo.ID == repo.ID && headName == baseName {
		return nil, invalid("head and base must differ")
	}

	base, err := s.db.GetBranch(ctx, repo.ID, baseName)
	if err != nil {
		return nil, mapDBErr(err, "base branch "+baseName)
	}
	head, err := s.db.GetBranch(ctx, headRepo.ID, headName)
	if err != nil {
		return nil, mapDBErr(err, "head branch "+headName)
	}

	pr := &models.PullRequest{
		RepoID:     repo.ID,
		Title:      title,
		Body:       body,
		AuthorID:   actor.ID,
		AuthorName: actor.Username,
		HeadBranch: head.Name,
		BaseBranch: base.Name,
		HeadSHA:    head.CommitSHA,
		BaseSHA:    base.CommitSHA,
		Draft:      in.Draft,
	}
	if headRepo.ID != repo.ID {
		pr.HeadRepoID = &headRepo.ID
	}
	if err := s.db.CreatePullRequest(ctx, pr); err != nil {
		return nil, mapDBErr(err, "create pull request")
	}
	s.metrics.numberReserved(models.NumberKindPullRequest)
	s.notify.NotifyPullRequestOpened(ctx, repo, pr, actor.ID)
	s.activity.Record(ctx, actor, models.EventPullRequest, repo, map[string]any{"action": "opened", "number": pr.Number, "title": pr.Title})
	return pr, nil
}

func (s *PullService) load(ctx context.Context, owner, name string, number int, viewer *Actor) (*models.Repository, *models.PullRequest, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, nil, err
	}
	pr, err := s.db.GetPullRequest(ctx, repo.ID, number)
	if err != nil {
		return nil, nil, mapDBErr(err, "pull request")
	}
	return repo, pr, nil
}

func (s *PullService) Get(ctx context.Context, owner, name string, number int, viewer *Actor) (*models.PullRequest, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	return pr, err
}

func (s *PullService) List(ctx context.Context, owner, name, state string, viewer *Actor, page, perPage int) ([]models.PullRequest, error) {
	if state == "all" {
		state = ""
	}
	if state != "" && !models.IsPullRequestState(state) {
		return nil, invalid("invalid state filter %q", state)
	}
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	prs, err := s.db.ListPullRequests(ctx, repo.ID, state, limit, offset)
	return prs, mapDBErr(err, "list pull requests")
}

func (s *PullService) authorOrTriage(ctx context.Context, repo *models.Repository, actor *Actor, pr *models.PullRequest) error {
	if actor.authenticated() && actor.ID == pr.AuthorID && !repo.Archived {
		return nil
	}
	return s.access.Authorize(ctx, repo, actor, ActionTriage)
}

// PullUpdate edits an open pull request; nil fields are left alone.
type PullUpdate struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Draft  *bool   `json:"draft"`
	Locked *bool   `json:"locked"`
}

func (s *PullService) Edit(ctx context.Context, actor *Actor, owner, name string, number int, in PullUpdate) (*models.PullRequest, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorOrTriage(ctx, repo, actor, pr); err != nil {
		return nil, err
	}
	if in.Title != nil {
		if pr.Title, err = validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Body != nil {
		if pr.Body, err = validateBody(*in.Body, false); err != nil {
			return nil, err
		}
	}
	if in.Draft != nil {
		pr.Draft = *in.Draft
	}
	if in.Locked != nil && *in.Locked != pr.Locked {
		if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
			return nil, err
		}
		pr.Locked = *in.Locked
	}
	if err := s.db.UpdatePullRequest(ctx, pr); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return nil, invalidState("pull request #%d is %s", number, pr.State)
		}
		return nil, mapDBErr(err, "pull request")
	}
	return pr, nil
}

// Close moves an open pull request to closed. Closed and merged pull requests cannot change state again.
func (s *PullService) Close(ctx context.Context, actor *Actor, owner, name string, number int) (*models.PullRequest, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorOrTriage(ctx, repo, actor, pr); err != nil {
		return nil, err
	}
	if err := s.db.ClosePullRequest(ctx, pr.ID, time.Now()); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return nil, invalidState("pull request #%d is already %s", number, pr.State)
		}
		return nil, mapDBErr(err, "pull request")
	}
	s.activity.Record(ctx, actor, models.EventPullRequest, repo, map[string]any{"action": "closed", "number": number})
	return s.reload(ctx, repo.ID, number)
}

// MergeInput optionally pins the merge commit and guards against a moved head.
type MergeInput struct {
	CommitSHA string `json:"commit_sha"`
	SHA       string `json:"sha"` // expected head sha
}

// Merge records the pull request as merged by actor. Only the repository owner may
// merge, and only while the pull request is open.
func (s *PullService) Merge(ctx context.Context, actor *Actor, owner, name string, number int, in MergeInput) (*models.PullRequest, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionMerge); err != nil {
		return nil, err
	}
	if pr.State != models.PullRequestStateOpen {
		return nil, invalidState("pull request #%d is already %s", number, pr.State)
	}
	if pr.Draft {
		return nil, invalidState("pull request #%d is a draft", number)
	}
	if in.SHA != "" && in.SHA != pr.HeadSHA {
		return nil, invalidState("head of pull request #%d moved to %s", number, pr.HeadSHA)
	}
	mergeSHA := in.CommitSHA
	if mergeSHA == "" {
		mergeSHA = mergeCommitSHA(pr)
	} else if !validSHA.MatchString(mergeSHA) {
		return nil, invalid("invalid merge commit sha %q", mergeSHA)
	}
	if err := s.db.MergePullRequest(ctx, pr.ID, actor.ID, mergeSHA, time.Now()); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return nil, invalidState("pull request #%d is no longer open", number)
		}
		return nil, mapDBErr(err, "pull request")
	}
	merged, err := s.reload(ctx, repo.ID, number)
	if err != nil {
		return nil, err
	}
	s.notify.NotifyPullRequestMerged(ctx, repo, merged, actor.ID)
	s.activity.Record(ctx, actor, models.EventPullRequest, repo, map[string]any{"action": "merged", "number": number, "merge_commit_sha": mergeSHA})
	return merged, nil
}

// mergeCommitSHA derives a stable identifier for a recorded merge.
func mergeCommitSHA(pr *models.PullRequest) string {
	sum := sha1.Sum(fmt.Appendf(nil, "merge %d %s %s %s", pr.ID, pr.BaseSHA, pr.HeadSHA, pr.HeadBranch))
	return hex.EncodeToString(sum[:])
}

func (s *PullService) reload(ctx context.Context, repoID int64, number int) (*models.PullRequest, error) {
	pr, err := s.db.GetPullRequest(ctx, repoID, number)
	if err != nil {
		return nil, mapDBErr(err, "pull request")
	}
	return pr, nil
}

// --- Comments ---

func (s *PullService) Comment(ctx context.Context, actor *Actor, owner, name string, number int, body string) (*models.Comment, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionComment); err != nil {
		return nil, err
	}
	if pr.Locked {
		if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
			return nil, invalidState("pull request #%d is locked", number)
		}
	}
	if body, err = validateBody(body, true); err != nil {
		return nil, err
	}
	c := &models.Comment{PullRequestID: &pr.ID, AuthorID: actor.ID, AuthorName: actor.Username, Body: body}
	if err := s.db.CreateComment(ctx, c); err != nil {
		return nil, mapDBErr(err, "comment")
	}
	s.notify.NotifyPullRequestComment(ctx, repo, pr, actor.ID)
	s.activity.Record(ctx, actor, models.EventPullRequest, repo, map[string]any{"action": "commented", "number": number, "comment_id": c.ID})
	return c, nil
}

func (s *PullService) ListComments(ctx context.Context, owner, name string, number int, viewer *Actor, page, perPage int) ([]models.Comment, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	comments, err := s.db.ListPullRequestComments(ctx, pr.ID, limit, offset)
	return comments, mapDBErr(err, "list comments")
}

func (s *PullService) EditComment(ctx context.Context, actor *Actor, owner, name string, id int64, body string) (*models.Comment, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	_, c, err := commentInRepo(ctx, s.db, repo, id)
	if err != nil {
		return nil, err
	}
	return editComment(ctx, s.db, s.access, repo, actor, c, body)
}

func (s *PullService) DeleteComment(ctx context.Context, actor *Actor, owner, name string, id int64) error {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return err
	}
	_, c, err := commentInRepo(ctx, s.db, repo, id)
	if err != nil {
		return err
	}
	return deleteComment(ctx, s.db, s.access, repo, actor, c)
}

// --- Reviewers, assignees and labels ---

func (s *PullService) RequestReviewers(ctx context.Context, actor *Actor, owner, name string, number int, usernames []string) ([]models.User, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorOrTriage(ctx, repo, actor, pr); err != nil {
		return nil, err
	}
	for _, username := range usernames {
		user, err := assignableUser(ctx, s.db, s.access, repo, username)
		if err != nil {
			return nil, err
		}
		if user.ID == pr.AuthorID {
			return nil, invalid("the author cannot review their own pull request")
		}
		err = s.db.AddPullRequestReviewer(ctx, pr.ID, user.ID)
		if isDuplicate(err) {
			continue
		}
		if err != nil {
			return nil, mapDBErr(err, "reviewer "+username)
		}
		s.notify.NotifyReviewRequested(ctx, repo, pr, user.ID, actor.ID)
	}
	users, err := s.db.ListPullRequestReviewers(ctx, pr.ID)
	return users, mapDBErr(err, "list reviewers")
}

func (s *PullService) RemoveReviewer(ctx context.Context, actor *Actor, owner, name string, number int, username string) error {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return err
	}
	if err := s.authorOrTriage(ctx, repo, actor, pr); err != nil {
		return err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return mapDBErr(err, "user "+username)
	}
	return mapDBErr(s.db.RemovePullRequestReviewer(ctx, pr.ID, user.ID), "reviewer "+username)
}

func (s *PullService) ListReviewers(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.User, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	users, err := s.db.ListPullRequestReviewers(ctx, pr.ID)
	return users, mapDBErr(err, "list reviewers")
}

func (s *PullService) AddAssignees(ctx context.Context, actor *Actor, owner, name string, number int, usernames []string) ([]models.User, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
		return nil, err
	}
	for _, username := range usernames {
		user, err := assignableUser(ctx, s.db, s.access, repo, username)
		if err != nil {
			return nil, err
		}
		if err := s.db.AddPullRequestAssignee(ctx, pr.ID, user.ID); err != nil && !isDuplicate(err) {
			return nil, mapDBErr(err, "assignee "+username)
		}
	}
	users, err := s.db.ListPullRequestAssignees(ctx, pr.ID)
	return users, mapDBErr(err, "list assignees")
}

func (s *PullService) RemoveAssignee(ctx context.Context, actor *Actor, owner, name string, number int, username string) error {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
		return err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return mapDBErr(err, "user "+username)
	}
	return mapDBErr(s.db.RemovePullRequestAssignee(ctx, pr.ID, user.ID), "assignee "+username)
}

func (s *PullService) ListAssignees(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.User, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	users, err := s.db.ListPullRequestAssignees(ctx, pr.ID)
	return users, mapDBErr(err, "list assignees")
}

func (s *PullService) AddLabels(ctx context.Context, actor *Actor, owner, name string, number int, labels []string) ([]models.Label, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return nil, err
	}
	for _, l := range labels {
		label, err := s.db.GetLabel(ctx, repo.ID, l)
		if err != nil {
			return nil, mapDBErr(err, "label "+l)
		}
		if err := s.db.AddPullRequestLabel(ctx, pr.ID, label.ID); err != nil && !isDuplicate(err) {
			return nil, mapDBErr(err, "label "+l)
		}
	}
	out, err := s.db.ListPullRequestLabels(ctx, pr.ID)
	return out, mapDBErr(err, "list labels")
}

func (s *PullService) RemoveLabel(ctx context.Context, actor *Actor, owner, name string, number int, label string) error {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return err
	}
	l, err := s.db.GetLabel(ctx, repo.ID, label)
	if err != nil {
		return mapDBErr(err, "label "+label)
	}
	return mapDBErr(s.db.RemovePullRequestLabel(ctx, pr.ID, l.ID), "label "+label)
}

func (s *PullService) ListLabels(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.Label, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	labels, err := s.db.ListPullRequestLabels(ctx, pr.ID)
	return labels, mapDBErr(err, "list labels")
}

// --- Reviews ---

// ReviewInput starts a review. An empty Event leaves it pending; otherwise it is
// submitted immediately as "approve", "request_changes" or "comment".
type ReviewInput struct {
	Body      string               `json:"body"`
	Event     string               `json:"event"`
	CommitSHA string               `json:"commit_sha"`
	Comments  []ReviewCommentInput `json:"comments"`
}

// ReviewCommentInput is an inline comment. InReplyTo names an existing review
// comment; the reply inherits its path and position.
type ReviewCommentInput struct {
	Body      string `json:"body"`
	Path      string `json:"path"`
	Position  int    `json:"position"`
	Line      int    `json:"line"`
	InReplyTo *int64 `json:"in_reply_to"`
}

func reviewStateForEvent(event string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "", "pending":
		return models.ReviewStatePending, nil
	case "approve", "approved":
		return models.ReviewStateApproved, nil
	case "request_changes", "changes_requested":
		return models.ReviewStateChangesRequested, nil
	case "comment", "commented":
		return models.ReviewStateCommented, nil
	}
	return "", invalid("invalid review event %q", event)
}

func (s *PullService) CreateReview(ctx context.Context, actor *Actor, owner, name string, number int, in ReviewInput) (*models.Review, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionReview); err != nil {
		return nil, err
	}
	if pr.State != models.PullRequestStateOpen {
		return nil, invalidState("pull request #%d is %s", number, pr.State)
	}
	state, err := reviewStateForEvent(in.Event)
	if err != nil {
		return nil, err
	}
	if err := checkReviewVerdict(state, actor, pr, in.Body); err != nil {
		return nil, err
	}
	body, err := validateBody(in.Body, false)
	if err != nil {
		return nil, err
	}
	sha := in.CommitSHA
	if sha == "" {
		sha = pr.HeadSHA
	}
	review := &models.Review{
		PullRequestID: pr.ID,
		ReviewerID:    actor.ID,
		ReviewerName:  actor.Username,
		Body:          body,
		State:         state,
		CommitSHA:     sha,
	}
	if state != models.ReviewStatePending {
		now := time.Now().UTC()
		review.SubmittedAt = &now
	}
	if err := s.db.CreateReview(ctx, review); err != nil {
		return nil, mapDBErr(err, "review")
	}
	for _, c := range in.Comments {
		if _, err := s.addReviewComment(ctx, actor, pr, review, c); err != nil {
			return nil, err
		}
	}
	if state != models.ReviewStatePending {
		s.reviewed(ctx, actor, repo, pr, review)
	}
	return review, nil
}

// checkReviewVerdict rejects self-approval and verdicts that need a body.
func checkReviewVerdict(state string, actor *Actor, pr *models.PullRequest, body string) error {
	if actor.ID == pr.AuthorID && (state == models.ReviewStateApproved || state == models.ReviewStateChangesRequested) {
		return invalid("authors cannot approve or request changes on their own pull request")
	}
	if (state == models.ReviewStateChangesRequested || state == models.ReviewStateCommented) && strings.TrimSpace(body) == "" {
		return invalid("a %s review needs a body", state)
	}
	return nil
}

func (s *PullService) reviewed(ctx context.Context, actor *Actor, repo *models.Repository, pr *models.PullRequest, review *models.Review) {
	s.notify.NotifyPullRequestReview(ctx, repo, pr, review, actor.ID)
	s.activity.Record(ctx, actor, models.EventPullRequest, repo, map[string]any{"action": "reviewed", "number": pr.Number, "state": review.State})
}

func (s *PullService) ListReviews(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.Review, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	reviews, err := s.db.ListReviews(ctx, pr.ID)
	if err != nil {
		return nil, mapDBErr(err, "list reviews")
	}
	// Pending reviews are only visible to their author.
	out := reviews[:0]
	for _, r := range reviews {
		if r.State == models.ReviewStatePending && (!viewer.authenticated() || viewer.ID != r.ReviewerID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PullService) review(ctx context.Context, pr *models.PullRequest, id int64) (*models.Review, error) {
	r, err := s.db.GetReview(ctx, id)
	if err != nil {
		return nil, mapDBErr(err, "review")
	}
	if r.PullRequestID != pr.ID {
		return nil, fmt.Errorf("review: %w", ErrNotFound)
	}
	return r, nil
}

// SubmitReview moves the actor's pending review to a verdict.
func (s *PullService) SubmitReview(ctx context.Context, actor *Actor, owner, name string, number int, id int64, event, body string) (*models.Review, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	review, err := s.review(ctx, pr, id)
	if err != nil {
		return nil, err
	}
	if !actor.authenticated() || actor.ID != review.ReviewerID {
		return nil, forbidden("submit another user's review")
	}
	if pr.State != models.PullRequestStateOpen {
		return nil, invalidState("pull request #%d is %s", number, pr.State)
	}
	if event == "" {
		event = "comment"
	}
	state, err := reviewStateForEvent(event)
	if err != nil {
		return nil, err
	}
	if state == models.ReviewStatePending {
		return nil, invalid("a submitted review needs a verdict")
	}
	if body == "" {
		body = review.Body
	}
	if err := checkReviewVerdict(state, actor, pr, body); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.db.TransitionReview(ctx, review.ID, []string{models.ReviewStatePending}, state, &now); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return nil, invalidState("review %d is already %s", id, review.State)
		}
		return nil, mapDBErr(err, "review")
	}
	review.State, review.SubmittedAt = state, &now
	s.reviewed(ctx, actor, repo, pr, review)
	return review, nil
}

// DismissReview withdraws a submitted approval or change request. Repository
// triagers may dismiss any review.
func (s *PullService) DismissReview(ctx context.Context, actor *Actor, owner, name string, number int, id int64) (*models.Review, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
		return nil, err
	}
	review, err := s.review(ctx, pr, id)
	if err != nil {
		return nil, err
	}
	from := []string{models.ReviewStateApproved, models.ReviewStateChangesRequested}
	if err := s.db.TransitionReview(ctx, review.ID, from, models.ReviewStateDismissed, nil); err != nil {
		if errors.Is(err, database.ErrStateConflict) {
			return nil, invalidState("review %d is %s and cannot be dismissed", id, review.State)
		}
		return nil, mapDBErr(err, "review")
	}
	review.State = models.ReviewStateDismissed
	return review, nil
}

// --- Review comments ---

// AddReviewComment attaches an inline comment to review id (which must belong to the actor).
func (s *PullService) AddReviewComment(ctx context.Context, actor *Actor, owner, name string, number int, reviewID int64, in ReviewCommentInput) (*models.ReviewComment, error) {
	repo, pr, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionReview); err != nil {
		return nil, err
	}
	review, err := s.review(ctx, pr, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != actor.ID {
		return nil, forbidden("comment on another user's review")
	}
	if review.State == models.ReviewStateDismissed {
		return nil, invalidState("review %d is dismissed", reviewID)
	}
	return s.addReviewComment(ctx, actor, pr, review, in)
}

func (s *PullService) addReviewComment(ctx context.Context, actor *Actor, pr *models.PullRequest, review *models.Review, in ReviewCommentInput) (*models.ReviewComment, error) {
	body, err := validateBody(in.Body, true)
	if err != nil {
		return nil, err
	}
	c := &models.ReviewComment{
		ReviewID:      review.ID,
		PullRequestID: pr.ID,
		AuthorID:      actor.ID,
		AuthorName:    actor.Username,
		Body:          body,
		Path:          strings.TrimSpace(in.Path),
		Position:      in.Position,
		Line:          in.Line,
		CommitSHA:     review.CommitSHA,
	}
	if in.InReplyTo != nil {
		parent, err := s.db.GetReviewComment(ctx, *in.InReplyTo)
		if err != nil {
			return nil, mapDBErr(err, "review comment")
		}
		if parent.PullRequestID != pr.ID {
			return nil, invalid("reply target belongs to another pull request")
		}
		c.InReplyToID = &parent.ID
		c.Path, c.Position, c.Line = parent.Path, parent.Position, parent.Line
	}
	if c.Path == "" {
		return nil, invalid("path is required")
	}
	if err := s.db.CreateReviewComment(ctx, c); err != nil {
		return nil, mapDBErr(err, "review comment")
	}
	return c, nil
}

// ListReviewComments returns inline comments, hiding those of other users' pending reviews.
func (s *PullService) ListReviewComments(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.ReviewComment, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	comments, err := s.db.ListReviewComments(ctx, pr.ID)
	if err != nil {
		return nil, mapDBErr(err, "list review comments")
	}
	return s.visibleReviewComments(ctx, pr, comments, viewer)
}

// ListReviewThread returns the comment chain rooted at id, oldest first.
func (s *PullService) ListReviewThread(ctx context.Context, owner, name string, number int, id int64, viewer *Actor) ([]models.ReviewComment, error) {
	_, pr, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	root, err := s.db.GetReviewComment(ctx, id)
	if err != nil {
		return nil, mapDBErr(err, "review comment")
	}
	if root.PullRequestID != pr.ID {
		return nil, fmt.Errorf("review comment: %w", ErrNotFound)
	}
	thread, err := s.db.ListReviewThread(ctx, root.ID)
	if err != nil {
		return nil, mapDBErr(err, "review thread")
	}
	return s.visibleReviewComments(ctx, pr, thread, viewer)
}

func (s *PullService) visibleReviewComments(ctx context.Context, pr *models.PullRequest, comments []models.ReviewComment, viewer *Actor) ([]models.ReviewComment, error) {
	reviews, err := s.db.ListReviews(ctx, pr.ID)
	if err != nil {
		return nil, mapDBErr(err, "list reviews")
	}
	hidden := make(map[int64]bool)
	for _, r := range reviews {
		if r.State == models.ReviewStatePending && (!viewer.authenticated() || viewer.ID != r.ReviewerID) {
			hidden[r.ID] = true
		}
	}
	out := comments[:0]
	for _, c := range comments {
		if !hidden[c.ReviewID] {
			out = append(out, c)
		}
	}
	return out, nil
}
