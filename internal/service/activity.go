package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

// ActivityService appends to and reads the per-user event log.
type ActivityService struct {
	db     database.DB
	access *AccessService
}

func NewActivityService(db database.DB, access *AccessService) *ActivityService {
	return &ActivityService{db: db, access: access}
}

// Record appends an event for actor. Events on private repositories are not
// public. Failures are logged and never surface to the caller.
func (s *ActivityService) Record(ctx context.Context, actor *Actor, eventType string, repo *models.Repository, payload map[string]any) {
	if s == nil || !actor.authenticated() {
		return
	}
	a := &models.Activity{
		UserID:    actor.ID,
		EventType: eventType,
		Public:    true,
	}
	if repo != nil {
		id := repo.ID
		a.RepoID = &id
		a.Public = !repo.IsPrivate
		if payload == nil {
			payload = map[string]any{}
		}
		payload["repo"] = repo.FullName()
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("encode activity payload", "event", eventType, "error", err)
			return
		}
		a.Payload = raw
	}
	if err := s.db.CreateActivity(ctx, a); err != nil {
		slog.Warn("record activity", "event", eventType, "user_id", actor.ID, "error", err)
	}
}

// UserFeed lists a user's events. Private events are visible to the user and site admins only.
func (s *ActivityService) UserFeed(ctx context.Context, username string, viewer *Actor, page, perPage int) ([]models.Activity, error) {
	u, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	includePrivate := viewer.authenticated() && (viewer.ID == u.ID || viewer.IsAdmin)
	limit, offset := normalizePage(page, perPage, 30, 100)
	events, err := s.db.ListUserActivities(ctx, u.ID, includePrivate, limit, offset)
	return events, mapDBErr(err, "list activity")
}

func (s *ActivityService) RepositoryFeed(ctx context.Context, owner, name string, viewer *Actor, page, perPage int) ([]models.Activity, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	events, err := s.db.ListRepositoryActivities(ctx, repo.ID, limit, offset)
	return events, mapDBErr(err, "list activity")
}

// Dashboard lists the actor's own events and the public events of users they follow.
func (s *ActivityService) Dashboard(ctx context.Context, actor *Actor, page, perPage int) ([]models.Activity, error) {
	if !actor.authenticated() {
		return nil, forbidden("dashboard requires authentication")
	}
	limit, offset := normalizePage(page, perPage, 30, 100)
	events, err := s.db.ListDashboardActivities(ctx, actor.ID, limit, offset)
	return events, mapDBErr(err, "list activity")
}
