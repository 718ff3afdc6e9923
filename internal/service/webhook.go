package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

// webhookEvents are the event names a hook may subscribe to. "*" subscribes to all.
var webhookEvents = []string{
	"*", "push", "create", "delete", "fork", "star", "watch",
	"issues", "issue_comment", "pull_request", "pull_request_review", "pull_request_review_comment",
	"release", "member",
}

// WebhookService stores hook configuration. Delivery is handled outside this process.
type WebhookService struct {
	db     database.DB
	access *AccessService
}

func NewWebhookService(db database.DB, access *AccessService) *WebhookService {
	return &WebhookService{db: db, access: access}
}

type WebhookInput struct {
	URL         string   `json:"url"`
	ContentType string   `json:"content_type"`
	Secret      string   `json:"secret"`
	Events      []string `json:"events"`
	Active      *bool    `json:"active"`
}

func validateWebhook(hook *models.Webhook) error {
	u, err := url.Parse(strings.TrimSpace(hook.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("webhook url must be an absolute http(s) URL")
	}
	hook.URL = u.String()
	switch hook.ContentType {
	case "":
		hook.ContentType = "json"
	case "json", "form":
	default:
		return invalid("content_type must be json or form")
	}
	if len(hook.Events) == 0 {
		hook.Events = []string{"push"}
	}
	seen := make([]string, 0, len(hook.Events))
	for _, e := range hook.Events {
		e = strings.ToLower(strings.TrimSpace(e))
		if !slices.Contains(webhookEvents, e) {
			return invalid("unknown webhook event %q", e)
		}
		if !slices.Contains(seen, e) {
			seen = append(seen, e)
		}
	}
	hook.Events = seen
	return nil
}

func (s *WebhookService) repo(ctx context.Context, actor *Actor, owner, name string) (*models.Repository, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionAdminister); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *WebhookService) Create(ctx context.Context, actor *Actor, owner, name string, in WebhookInput) (*models.Webhook, error) {
	repo, err := s.repo(ctx, actor, owner, name)
	if err != nil {
		return nil, err
	}
	hook := &models.Webhook{
		RepoID:      repo.ID,
		URL:         in.URL,
		ContentType: in.ContentType,
		Secret:      in.Secret,
		Events:      in.Events,
		Active:      in.Active == nil || *in.Active,
	}
	if err := validateWebhook(hook); err != nil {
		return nil, err
	}
	if err := s.db.CreateWebhook(ctx, hook); err != nil {
		return nil, mapDBErr(err, "webhook")
	}
	return hook, nil
}

func (s *WebhookService) List(ctx context.Context, actor *Actor, owner, name string) ([]models.Webhook, error) {
	repo, err := s.repo(ctx, actor, owner, name)
	if err != nil {
		return nil, err
	}
	hooks, err := s.db.ListWebhooks(ctx, repo.ID)
	return hooks, mapDBErr(err, "list webhooks")
}

func (s *WebhookService) Get(ctx context.Context, actor *Actor, owner, name string, id int64) (*models.Webhook, error) {
	repo, err := s.repo(ctx, actor, owner, name)
	if err != nil {
		return nil, err
	}
	hook, err := s.db.GetWebhook(ctx, repo.ID, id)
	if err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("webhook %d", id))
	}
	return hook, nil
}

// Update overwrites the non-empty fields of in onto hook id.
func (s *WebhookService) Update(ctx context.Context, actor *Actor, owner, name string, id int64, in WebhookInput) (*models.Webhook, error) {
	hook, err := s.Get(ctx, actor, owner, name, id)
	if err != nil {
		return nil, err
	}
	if in.URL != "" {
		hook.URL = in.URL
	}
	if in.ContentType != "" {
		hook.ContentType = in.ContentType
	}
	if in.Secret != "" {
		hook.Secret = in.Secret
	}
	if in.Events != nil {
		hook.Events = in.Events
	}
	if in.Active != nil {
		hook.Active = *in.Active
	}
	if err := validateWebhook(hook); err != nil {
		return nil, err
	}
	if err := s.db.UpdateWebhook(ctx, hook); err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("webhook %d", id))
	}
	return hook, nil
}

func (s *WebhookService) Delete(ctx context.Context, actor *Actor, owner, name string, id int64) error {
	repo, err := s.repo(ctx, actor, owner, name)
	if err != nil {
		return err
	}
	return mapDBErr(s.db.DeleteWebhook(ctx, repo.ID, id), fmt.Sprintf("webhook %d", id))
}
