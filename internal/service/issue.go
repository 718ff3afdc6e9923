package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

const (
	maxTitleLen = 256
	maxBodyLen  = 65536
)

type IssueService struct {
	db       database.DB
	access   *AccessService
	notify   *NotificationService
	activity *ActivityService
	metrics  *serviceMetrics
}

func NewIssueService(db database.DB, access *AccessService, notify *NotificationService, activity *ActivityService) *IssueService {
	return &IssueService{db: db, access: access, notify: notify, activity: activity, metrics: getDefaultServiceMetrics()}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title is required")
	}
	if len(title) > maxTitleLen {
		return "", invalid("title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

func validateBody(body string, required bool) (string, error) {
	if required && strings.TrimSpace(body) == "" {
		return "", invalid("body is required")
	}
	if len(body) > maxBodyLen {
		return "", invalid("body must be at most %d characters", maxBodyLen)
	}
	return body, nil
}

// IssueInput opens an issue. Assignees and labels are optional and applied by the
// opener only when they hold triage permission.
type IssueInput struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees"`
	Labels    []string `json:"labels"`
}

func (s *IssueService) Create(ctx context.Context, actor *Actor, owner, name string, in IssueInput) (*models.Issue, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if !repo.HasIssues {
		return nil, invalidState("issues are disabled for %s", repo.FullName())
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
	assignees, labels, err := s.resolveAddOns(ctx, repo, actor, in)
	if err != nil {
		return nil, err
	}
	issue := &models.Issue{RepoID: repo.ID, Title: title, Body: body, AuthorID: actor.ID, AuthorName: actor.Username}
	if err := s.db.CreateIssue(ctx, issue); err != nil {
		return nil, mapDBErr(err, "create issue")
	}
	s.metrics.numberReserved(models.NumberKindIssue)

	for _, user := range assignees {
		if err := s.db.AddIssueAssignee(ctx, issue.ID, user.ID); err != nil && !isDuplicate(err) {
			slog.Warn("assign issue", "repo", repo.FullName(), "number", issue.Number, "assignee", user.Username, "error", err)
		}
	}
	for _, label := range labels {
		if err := s.db.AddIssueLabel(ctx, issue.ID, label.ID); err != nil && !isDuplicate(err) {
			slog.Warn("label issue", "repo", repo.FullName(), "number", issue.Number, "label", label.Name, "error", err)
		}
	}

	s.notify.NotifyIssueOpened(ctx, repo, issue, actor.ID)
	s.activity.Record(ctx, actor, models.EventIssue, repo, map[string]any{"action": "opened", "number": issue.Number, "title": issue.Title})
	return issue, nil
}

// resolveAddOns looks up the requested assignees and labels before the issue
// exists, so an unknown name rejects the whole request. Openers without triage
// permission have the add-ons ignored.
func (s *IssueService) resolveAddOns(ctx context.Context, repo *models.Repository, actor *Actor, in IssueInput) ([]*models.User, []*models.Label, error) {
	if len(in.Assignees) == 0 && len(in.Labels) == 0 {
		return nil, nil, nil
	}
	if ok, _ := s.access.CanMutate(ctx, repo, actor, ActionTriage); !ok {
		return nil, nil, nil
	}
	users := make([]*models.User, 0, len(in.Assignees))
	for _, username := range in.Assignees {
		user, err := assignableUser(ctx, s.db, s.access, repo, username)
		if err != nil {
			return nil, nil, err
		}
		users = append(users, user)
	}
	labels := make([]*models.Label, 0, len(in.Labels))
	for _, name := range in.Labels {
		label, err := s.db.GetLabel(ctx, repo.ID, name)
		if err != nil {
			return nil, nil, mapDBErr(err, "label "+name)
		}
		labels = append(labels, label)
	}
	return users, labels, nil
}

func (s *IssueService) Get(ctx context.Context, owner, name string, number int, viewer *Actor) (*models.Issue, error) {
	_, issue, err := s.load(ctx, owner, name, number, viewer)
	return issue, err
}

func (s *IssueService) load(ctx context.Context, owner, name string, number int, viewer *Actor) (*models.Repository, *models.Issue, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, nil, err
	}
	issue, err := s.db.GetIssue(ctx, repo.ID, number)
	if err != nil {
		return nil, nil, mapDBErr(err, "issue")
	}
	return repo, issue, nil
}

// List returns issues newest first, filtered by state ("open", "closed", or "" / "all").
func (s *IssueService) List(ctx context.Context, owner, name, state string, viewer *Actor, page, perPage int) ([]models.Issue, error) {
	if state == "all" {
		state = ""
	}
	if state != "" && !models.IsIssueState(state) {
		return nil, invalid("invalid state filter %q", state)
	}
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	issues, err := s.db.ListIssues(ctx, repo.ID, state, limit, offset)
	return issues, mapDBErr(err, "list issues")
}

// authorOrTriage permits the issue author, or anyone holding triage on repo.
func (s *IssueService) authorOrTriage(ctx context.Context, repo *models.Repository, actor *Actor, authorID int64) error {
	if actor.authenticated() && actor.ID == authorID && !repo.Archived {
		return nil
	}
	return s.access.Authorize(ctx, repo, actor, ActionTriage)
}

// IssueUpdate edits an issue; nil fields are left alone.
type IssueUpdate struct {
	Title  *string `json:"title"`
	Body   *string `json:"body"`
	Locked *bool   `json:"locked"`
}

func (s *IssueService) Edit(ctx context.Context, actor *Actor, owner, name string, number int, in IssueUpdate) (*models.Issue, error) {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorOrTriage(ctx, repo, actor, issue.AuthorID); err != nil {
		return nil, err
	}
	if in.Title != nil {
		if issue.Title, err = validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Body != nil {
		if issue.Body, err = validateBody(*in.Body, false); err != nil {
			return nil, err
		}
	}
	if in.Locked != nil && *in.Locked != issue.Locked {
		if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
			return nil, err
		}
		issue.Locked = *in.Locked
	}
	if err := s.db.UpdateIssue(ctx, issue); err != nil {
		return nil, mapDBErr(err, "issue")
	}
	return issue, nil
}

func (s *IssueService) Close(ctx context.Context, actor *Actor, owner, name string, number int) (*models.Issue, error) {
	return s.setState(ctx, actor, owner, name, number, models.IssueStateClosed, "closed")
}

func (s *IssueService) Reopen(ctx context.Context, actor *Actor, owner, name string, number int) (*models.Issue, error) {
	return s.setState(ctx, actor, owner, name, number, models.IssueStateOpen, "reopened")
}

func (s *IssueService) setState(ctx context.Context, actor *Actor, owner, name string, number int, state, verb string) (*models.Issue, error) {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.authorOrTriage(ctx, repo, actor, issue.AuthorID); err != nil {
		return nil, err
	}
	err = s.db.SetIssueState(ctx, issue.ID, state, time.Now())
	if errors.Is(err, database.ErrStateConflict) {
		return nil, invalidState("issue #%d is already %s", number, state)
	}
	if err != nil {
		return nil, mapDBErr(err, "issue")
	}
	updated, err := s.db.GetIssue(ctx, repo.ID, number)
	if err != nil {
		return nil, mapDBErr(err, "issue")
	}
	s.activity.Record(ctx, actor, models.EventIssue, repo, map[string]any{"action": verb, "number": number})
	return updated, nil
}

// --- Comments ---

func (s *IssueService) Comment(ctx context.Context, actor *Actor, owner, name string, number int, body string) (*models.Comment, error) {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionComment); err != nil {
		return nil, err
	}
	if issue.Locked {
		if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
			return nil, invalidState("issue #%d is locked", number)
		}
	}
	if body, err = validateBody(body, true); err != nil {
		return nil, err
	}
	c := &models.Comment{IssueID: &issue.ID, AuthorID: actor.ID, AuthorName: actor.Username, Body: body}
	if err := s.db.CreateComment(ctx, c); err != nil {
		return nil, mapDBErr(err, "comment")
	}
	s.notify.NotifyIssueComment(ctx, repo, issue, actor.ID)
	s.activity.Record(ctx, actor, models.EventIssue, repo, map[string]any{"action": "commented", "number": number, "comment_id": c.ID})
	return c, nil
}

func (s *IssueService) ListComments(ctx context.Context, owner, name string, number int, viewer *Actor, page, perPage int) ([]models.Comment, error) {
	_, issue, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	comments, err := s.db.ListIssueComments(ctx, issue.ID, limit, offset)
	return comments, mapDBErr(err, "list comments")
}

// issueComment loads comment id and checks it belongs to an issue of owner/name.
func (s *IssueService) issueComment(ctx context.Context, actor *Actor, owner, name string, id int64) (*models.Repository, *models.Comment, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, nil, err
	}
	return commentInRepo(ctx, s.db, repo, id)
}

func (s *IssueService) EditComment(ctx context.Context, actor *Actor, owner, name string, id int64, body string) (*models.Comment, error) {
	repo, c, err := s.issueComment(ctx, actor, owner, name, id)
	if err != nil {
		return nil, err
	}
	return editComment(ctx, s.db, s.access, repo, actor, c, body)
}

func (s *IssueService) DeleteComment(ctx context.Context, actor *Actor, owner, name string, id int64) error {
	repo, c, err := s.issueComment(ctx, actor, owner, name, id)
	if err != nil {
		return err
	}
	return deleteComment(ctx, s.db, s.access, repo, actor, c)
}

// commentInRepo loads a comment and confirms its issue or pull request lives in repo.
func commentInRepo(ctx context.Context, db database.DB, repo *models.Repository, id int64) (*models.Repository, *models.Comment, error) {
	repoID, err := db.CommentRepoID(ctx, id)
	if err != nil {
		return nil, nil, mapDBErr(err, "comment")
	}
	if repoID != repo.ID {
		return nil, nil, fmt.Errorf("comment: %w", ErrNotFound)
	}
	c, err := db.GetComment(ctx, id)
	if err != nil {
		return nil, nil, mapDBErr(err, "comment")
	}
	return repo, c, nil
}

func editComment(ctx context.Context, db database.DB, access *AccessService, repo *models.Repository, actor *Actor, c *models.Comment, body string) (*models.Comment, error) {
	if err := commentOwnerOrTriage(ctx, access, repo, actor, c.AuthorID); err != nil {
		return nil, err
	}
	body, err := validateBody(body, true)
	if err != nil {
		return nil, err
	}
	at := time.Now().UTC()
	if err := db.UpdateComment(ctx, c.ID, body, at); err != nil {
		return nil, mapDBErr(err, "comment")
	}
	c.Body, c.UpdatedAt = body, at
	return c, nil
}

func deleteComment(ctx context.Context, db database.DB, access *AccessService, repo *models.Repository, actor *Actor, c *models.Comment) error {
	if err := commentOwnerOrTriage(ctx, access, repo, actor, c.AuthorID); err != nil {
		return err
	}
	return mapDBErr(db.DeleteComment(ctx, c.ID), "comment")
}

func commentOwnerOrTriage(ctx context.Context, access *AccessService, repo *models.Repository, actor *Actor, authorID int64) error {
	if actor.authenticated() && actor.ID == authorID {
		if repo.Archived {
			return invalidState("repository %s is archived", repo.FullName())
		}
		return nil
	}
	return access.Authorize(ctx, repo, actor, ActionTriage)
}

// --- Assignees and labels ---

func (s *IssueService) AddAssignees(ctx context.Context, actor *Actor, owner, name string, number int, usernames []string) ([]models.User, error) {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionTriage); err != nil {
		return nil, err
	}
	for _, username := range usernames {
		if err := s.addAssignee(ctx, repo, issue, username); err != nil {
			return nil, err
		}
	}
	users, err := s.db.ListIssueAssignees(ctx, issue.ID)
	return users, mapDBErr(err, "list assignees")
}

func (s *IssueService) addAssignee(ctx context.Context, repo *models.Repository, issue *models.Issue, username string) error {
	user, err := assignableUser(ctx, s.db, s.access, repo, username)
	if err != nil {
		return err
	}
	err = s.db.AddIssueAssignee(ctx, issue.ID, user.ID)
	if isDuplicate(err) {
		return nil
	}
	return mapDBErr(err, "assignee "+username)
}

func (s *IssueService) RemoveAssignee(ctx context.Context, actor *Actor, owner, name string, number int, username string) error {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
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
	return mapDBErr(s.db.RemoveIssueAssignee(ctx, issue.ID, user.ID), "assignee "+username)
}

func (s *IssueService) ListAssignees(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.User, error) {
	_, issue, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	users, err := s.db.ListIssueAssignees(ctx, issue.ID)
	return users, mapDBErr(err, "list assignees")
}

func (s *IssueService) AddLabels(ctx context.Context, actor *Actor, owner, name string, number int, labels []string) ([]models.Label, error) {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return nil, err
	}
	for _, l := range labels {
		if err := s.addLabel(ctx, repo, issue, l); err != nil {
			return nil, err
		}
	}
	out, err := s.db.ListIssueLabels(ctx, issue.ID)
	return out, mapDBErr(err, "list labels")
}

func (s *IssueService) addLabel(ctx context.Context, repo *models.Repository, issue *models.Issue, name string) error {
	label, err := s.db.GetLabel(ctx, repo.ID, name)
	if err != nil {
		return mapDBErr(err, "label "+name)
	}
	err = s.db.AddIssueLabel(ctx, issue.ID, label.ID)
	if isDuplicate(err) {
		return nil
	}
	return mapDBErr(err, "label "+name)
}

func (s *IssueService) RemoveLabel(ctx context.Context, actor *Actor, owner, name string, number int, label string) error {
	repo, issue, err := s.load(ctx, owner, name, number, actor)
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
	return mapDBErr(s.db.RemoveIssueLabel(ctx, issue.ID, l.ID), "label "+label)
}

func (s *IssueService) ListLabels(ctx context.Context, owner, name string, number int, viewer *Actor) ([]models.Label, error) {
	_, issue, err := s.load(ctx, owner, name, number, viewer)
	if err != nil {
		return nil, err
	}
	labels, err := s.db.ListIssueLabels(ctx, issue.ID)
	return labels, mapDBErr(err, "list labels")
}

// assignableUser resolves username and requires them to be able to see repo.
func assignableUser(ctx context.Context, db database.DB, access *AccessService, repo *models.Repository, username string) (*models.User, error) {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	ok, err := access.CanView(ctx, repo, &Actor{ID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("%s cannot access %s", username, repo.FullName())
	}
	return user, nil
}
