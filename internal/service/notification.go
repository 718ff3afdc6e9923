package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

// Notification reasons, in the order a recipient's reason is chosen.
const (
	reasonAuthor          = "author"
	reasonAssign          = "assign"
	reasonReviewRequested = "review_requested"
	reasonOwner           = "owner"
	reasonSubscribed      = "subscribed"
)

type NotificationService struct {
	db database.DB
}

func NewNotificationService(db database.DB) *NotificationService {
	return &NotificationService{db: db}
}

// recipients accumulates user ids with the first reason each was added for.
type recipients struct {
	order  []int64
	reason map[int64]string
}

func (r *recipients) add(userID int64, reason string) {
	if userID <= 0 {
		return
	}
	if r.reason == nil {
		r.reason = make(map[int64]string)
	}
	if _, ok := r.reason[userID]; ok {
		return
	}
	r.reason[userID] = reason
	r.order = append(r.order, userID)
}

func (s *NotificationService) NotifyIssueOpened(ctx context.Context, repo *models.Repository, issue *models.Issue, actorID int64) {
	var to recipients
	s.addRepoAudience(ctx, &to, repo)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypeIssue,
		fmt.Sprintf("Issue #%d opened in %s: %s", issue.Number, repo.FullName(), clipText(issue.Title, 200)),
		fmt.Sprintf("/%s/issues/%d", repo.FullName(), issue.Number))
}

func (s *NotificationService) NotifyIssueComment(ctx context.Context, repo *models.Repository, issue *models.Issue, actorID int64) {
	var to recipients
	to.add(issue.AuthorID, reasonAuthor)
	if assignees, err := s.db.ListIssueAssignees(ctx, issue.ID); err == nil {
		for _, u := range assignees {
			to.add(u.ID, reasonAssign)
		}
	} else {
		slog.Warn("list issue assignees for notification", "issue_id", issue.ID, "error", err)
	}
	s.addRepoAudience(ctx, &to, repo)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypeIssue,
		fmt.Sprintf("New comment on issue #%d in %s", issue.Number, repo.FullName()),
		fmt.Sprintf("/%s/issues/%d", repo.FullName(), issue.Number))
}

func (s *NotificationService) NotifyPullRequestOpened(ctx context.Context, repo *models.Repository, pr *models.PullRequest, actorID int64) {
	var to recipients
	s.addRepoAudience(ctx, &to, repo)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypePullRequest,
		fmt.Sprintf("Pull request #%d opened in %s: %s", pr.Number, repo.FullName(), clipText(pr.Title, 200)),
		fmt.Sprintf("/%s/pulls/%d", repo.FullName(), pr.Number))
}

func (s *NotificationService) NotifyPullRequestComment(ctx context.Context, repo *models.Repository, pr *models.PullRequest, actorID int64) {
	var to recipients
	s.addPullParticipants(ctx, &to, pr)
	s.addRepoAudience(ctx, &to, repo)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypePullRequest,
		fmt.Sprintf("New comment on pull request #%d in %s", pr.Number, repo.FullName()),
		fmt.Sprintf("/%s/pulls/%d", repo.FullName(), pr.Number))
}

func (s *NotificationService) NotifyPullRequestReview(ctx context.Context, repo *models.Repository, pr *models.PullRequest, review *models.Review, actorID int64) {
	var to recipients
	to.add(pr.AuthorID, reasonAuthor)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypePullRequest,
		fmt.Sprintf("Pull request #%d in %s was reviewed: %s", pr.Number, repo.FullName(), review.State),
		fmt.Sprintf("/%s/pulls/%d", repo.FullName(), pr.Number))
}

func (s *NotificationService) NotifyReviewRequested(ctx context.Context, repo *models.Repository, pr *models.PullRequest, reviewerID, actorID int64) {
	var to recipients
	to.add(reviewerID, reasonReviewRequested)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypePullRequest,
		fmt.Sprintf("Review requested on pull request #%d in %s", pr.Number, repo.FullName()),
		fmt.Sprintf("/%s/pulls/%d", repo.FullName(), pr.Number))
}

func (s *NotificationService) NotifyPullRequestMerged(ctx context.Context, repo *models.Repository, pr *models.PullRequest, actorID int64) {
	var to recipients
	s.addPullParticipants(ctx, &to, pr)
	s.addRepoAudience(ctx, &to, repo)
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypePullRequest,
		fmt.Sprintf("Pull request #%d merged in %s", pr.Number, repo.FullName()),
		fmt.Sprintf("/%s/pulls/%d", repo.FullName(), pr.Number))
}

func (s *NotificationService) NotifyReleasePublished(ctx context.Context, repo *models.Repository, rel *models.Release, actorID int64) {
	var to recipients
	s.addRepoAudience(ctx, &to, repo)
	name := rel.Name
	if name == "" {
		name = rel.TagName
	}
	s.deliver(ctx, &to, actorID, repo, models.NotificationTypeRelease,
		fmt.Sprintf("Release %s published in %s", clipText(name, 200), repo.FullName()),
		fmt.Sprintf("/%s/releases/tag/%s", repo.FullName(), rel.TagName))
}

func (s *NotificationService) addPullParticipants(ctx context.Context, to *recipients, pr *models.PullRequest) {
	to.add(pr.AuthorID, reasonAuthor)
	if assignees, err := s.db.ListPullRequestAssignees(ctx, pr.ID); err == nil {
		for _, u := range assignees {
			to.add(u.ID, reasonAssign)
		}
	} else {
		slog.Warn("list pull request assignees for notification", "pr_id", pr.ID, "error", err)
	}
	if reviewers, err := s.db.ListPullRequestReviewers(ctx, pr.ID); err == nil {
		for _, u := range reviewers {
			to.add(u.ID, reasonReviewRequested)
		}
	} else {
		slog.Warn("list pull request reviewers for notification", "pr_id", pr.ID, "error", err)
	}
}

// addRepoAudience adds the repository owner and every watcher.
func (s *NotificationService) addRepoAudience(ctx context.Context, to *recipients, repo *models.Repository) {
	to.add(repo.OwnerID, reasonOwner)
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		watchers, err := s.db.ListWatchers(ctx, repo.ID, pageSize, offset)
		if err != nil {
			slog.Warn("list watchers for notification", "repo_id", repo.ID, "error", err)
			return
		}
		for _, u := range watchers {
			to.add(u.ID, reasonSubscribed)
		}
		if len(watchers) < pageSize {
			return
		}
	}
}

// deliver writes one notification per recipient, skipping the actor. Failures
// are logged; notifications never fail the mutation that triggered them.
func (s *NotificationService) deliver(ctx context.Context, to *recipients, actorID int64, repo *models.Repository, typ, subject, url string) {
	for _, userID := range to.order {
		if userID == actorID {
			continue
		}
		n := &models.Notification{
			UserID:  userID,
			RepoID:  repo.ID,
			Type:    typ,
			Subject: subject,
			Reason:  to.reason[userID],
			URL:     url,
			Unread:  true,
		}
		if err := s.db.CreateNotification(ctx, n); err != nil {
			slog.Error("create notification", "user_id", userID, "repo_id", repo.ID, "type", typ, "error", err)
		}
	}
}

func (s *NotificationService) List(ctx context.Context, actor *Actor, unreadOnly bool, page, perPage int) ([]models.Notification, error) {
	if !actor.authenticated() {
		return nil, forbidden("notifications require authentication")
	}
	limit, offset := normalizePage(page, perPage, 50, 100)
	items, err := s.db.ListNotifications(ctx, actor.ID, unreadOnly, limit, offset)
	return items, mapDBErr(err, "list notifications")
}

func (s *NotificationService) CountUnread(ctx context.Context, actor *Actor) (int, error) {
	if !actor.authenticated() {
		return 0, forbidden("notifications require authentication")
	}
	n, err := s.db.CountUnreadNotifications(ctx, actor.ID)
	return n, mapDBErr(err, "count notifications")
}

// SetUnread toggles one of the actor's notifications.
func (s *NotificationService) SetUnread(ctx context.Context, actor *Actor, id int64, unread bool) error {
	if !actor.authenticated() {
		return forbidden("notifications require authentication")
	}
	return mapDBErr(s.db.SetNotificationUnread(ctx, id, actor.ID, unread), fmt.Sprintf("notification %d", id))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor *Actor) (int64, error) {
	if !actor.authenticated() {
		return 0, forbidden("notifications require authentication")
	}
	n, err := s.db.MarkAllNotificationsRead(ctx, actor.ID)
	return n, mapDBErr(err, "mark notifications read")
}
