package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

// Actor is the resolved caller of an operation. A nil *Actor is anonymous.
type Actor struct {
	ID       int64
	Username string
	IsAdmin  bool
}

func (a *Actor) authenticated() bool {
	return a != nil && a.ID > 0
}

func (a *Actor) repoViewer() database.RepoViewer {
	if !a.authenticated() {
		return database.RepoViewer{}
	}
	return database.RepoViewer{UserID: a.ID, SiteAdmin: a.IsAdmin}
}

// Action names a gated repository operation.
type Action string

const (
	// Owner-only.
	ActionMerge    Action = "merge"
	ActionRelease  Action = "release"
	ActionSettings Action = "settings"
	ActionDelete   Action = "delete"

	// Admin collaborators.
	ActionAdminister Action = "administer"

	// Write collaborators.
	ActionPush   Action = "push"
	ActionBranch Action = "branch"
	ActionLabel  Action = "label"
	ActionTriage Action = "triage"

	// Any authenticated viewer.
	ActionOpen    Action = "open"
	ActionComment Action = "comment"
	ActionReview  Action = "review"
	ActionStar    Action = "star"
	ActionWatch   Action = "watch"
	ActionFork    Action = "fork"
)

type actionRule struct {
	ownerOnly bool
	perm      string // minimum collaborator permission; "" means any viewer
	archived  bool   // permitted on archived repositories
}

var actionRules = map[Action]actionRule{
	ActionMerge:      {ownerOnly: true},
	ActionRelease:    {ownerOnly: true},
	ActionSettings:   {ownerOnly: true, archived: true},
	ActionDelete:     {ownerOnly: true, archived: true},
	ActionAdminister: {perm: models.PermissionAdmin, archived: true},
	ActionPush:       {perm: models.PermissionWrite},
	ActionBranch:     {perm: models.PermissionWrite},
	ActionLabel:      {perm: models.PermissionWrite},
	ActionTriage:     {perm: models.PermissionWrite},
	ActionOpen:       {},
	ActionComment:    {},
	ActionReview:     {},
	ActionStar:       {archived: true},
	ActionWatch:      {archived: true},
	ActionFork:       {archived: true},
}

// repoAccess is what an actor holds on one repository.
type repoAccess struct {
	owner bool
	perm  string // "", read, write or admin
}

// AccessService answers the repository visibility and mutation gate.
type AccessService struct {
	db database.DB
}

func NewAccessService(db database.DB) *AccessService {
	return &AccessService{db: db}
}

// resolve computes the actor's standing on repo. Organization owners count as
// repository owners; organization admins as admin collaborators; other members
// as read collaborators.
func (s *AccessService) resolve(ctx context.Context, repo *models.Repository, actor *Actor) (repoAccess, error) {
	if !actor.authenticated() {
		return repoAccess{}, nil
	}
	if actor.IsAdmin || actor.ID == repo.OwnerID {
		return repoAccess{owner: true, perm: models.PermissionAdmin}, nil
	}
	var acc repoAccess
	if repo.OrgID != nil {
		m, err := s.db.GetOrgMember(ctx, *repo.OrgID, actor.ID)
		switch {
		case err == nil:
			switch m.Role {
			case models.OrgRoleOwner:
				return repoAccess{owner: true, perm: models.PermissionAdmin}, nil
			case models.OrgRoleAdmin:
				acc.perm = models.PermissionAdmin
			default:
				acc.perm = models.PermissionRead
			}
		case !errors.Is(err, sql.ErrNoRows):
			return repoAccess{}, err
		}
	}
	c, err := s.db.GetCollaborator(ctx, repo.ID, actor.ID)
	switch {
	case err == nil:
		if !models.PermissionAtLeast(acc.perm, c.Permission) {
			acc.perm = c.Permission
		}
	case !errors.Is(err, sql.ErrNoRows):
		return repoAccess{}, err
	}
	return acc, nil
}

// CanView reports whether actor may read repo: it is public, or the actor is
// the owner, or holds at least read permission.
func (s *AccessService) CanView(ctx context.Context, repo *models.Repository, actor *Actor) (bool, error) {
	if !repo.IsPrivate {
		return true, nil
	}
	acc, err := s.resolve(ctx, repo, actor)
	if err != nil {
		return false, err
	}
	return acc.owner || models.PermissionAtLeast(acc.perm, models.PermissionRead), nil
}

// CanMutate reports whether actor may perform action on repo.
func (s *AccessService) CanMutate(ctx context.Context, repo *models.Repository, actor *Actor, action Action) (bool, error) {
	rule, ok := actionRules[action]
	if !ok || !actor.authenticated() {
		return false, nil
	}
	acc, err := s.resolve(ctx, repo, actor)
	if err != nil {
		return false, err
	}
	if repo.IsPrivate && !acc.owner && !models.PermissionAtLeast(acc.perm, models.PermissionRead) {
		return false, nil
	}
	switch {
	case acc.owner:
		return true, nil
	case rule.ownerOnly:
		return false, nil
	case rule.perm == "":
		return true, nil
	default:
		return models.PermissionAtLeast(acc.perm, rule.perm), nil
	}
}

// Authorize returns nil when actor may perform action on repo, ErrForbidden
// when not, and ErrInvalidState for writes to an archived repository.
func (s *AccessService) Authorize(ctx context.Context, repo *models.Repository, actor *Actor, action Action) error {
	ok, err := s.CanMutate(ctx, repo, actor, action)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("%s on %s", action, repo.FullName())
	}
	if repo.Archived && !actionRules[action].archived {
		return invalidState("repository %s is archived", repo.FullName())
	}
	return nil
}

// RequireView returns ErrNotVisible when actor may not read repo.
func (s *AccessService) RequireView(ctx context.Context, repo *models.Repository, actor *Actor) error {
	ok, err := s.CanView(ctx, repo, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("view %s: %w", repo.FullName(), ErrNotVisible)
	}
	return nil
}

// Repository loads owner/name and checks that actor may view it.
func (s *AccessService) Repository(ctx context.Context, owner, name string, actor *Actor) (*models.Repository, error) {
	repo, err := s.db.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, mapDBErr(err, "repository "+owner+"/"+name)
	}
	if err := s.RequireView(ctx, repo, actor); err != nil {
		return nil, err
	}
	return repo, nil
}

// Permission returns the effective permission actor holds on repo ("" for none).
func (s *AccessService) Permission(ctx context.Context, repo *models.Repository, actor *Actor) (string, error) {
	acc, err := s.resolve(ctx, repo, actor)
	if err != nil {
		return "", err
	}
	if acc.perm == "" && !repo.IsPrivate && actor.authenticated() {
		return models.PermissionRead, nil
	}
	return acc.perm, nil
}
