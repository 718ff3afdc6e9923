package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

type OrgService struct {
	db database.DB
}

func NewOrgService(db database.DB) *OrgService {
	return &OrgService{db: db}
}

// OrgInput carries the descriptive fields of an organization.
type OrgInput struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Location    string `json:"location"`
	Email       string `json:"email"`
}

// Create registers an organization; the creator becomes its owner member.
// Organization names share the namespace of usernames.
func (s *OrgService) Create(ctx context.Context, actor *Actor, in OrgInput) (*models.Org, error) {
	if !actor.authenticated() {
		return nil, forbidden("creating an organization requires authentication")
	}
	name := strings.TrimSpace(in.Name)
	if !validUsername.MatchString(name) {
		return nil, invalid("invalid organization name %q", name)
	}
	if _, err := s.db.GetUserByUsername(ctx, name); err == nil {
		return nil, mapDBErr(database.ErrDuplicate, "organization "+name)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	org := &models.Org{
		Name:        name,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Description: strings.TrimSpace(in.Description),
		Website:     strings.TrimSpace(in.Website),
		Location:    strings.TrimSpace(in.Location),
		Email:       strings.TrimSpace(in.Email),
		OwnerID:     actor.ID,
	}
	if err := s.db.CreateOrg(ctx, org); err != nil {
		return nil, mapDBErr(err, "organization "+name)
	}
	return org, nil
}

func (s *OrgService) Get(ctx context.Context, name string) (*models.Org, error) {
	org, err := s.db.GetOrg(ctx, name)
	if err != nil {
		return nil, mapDBErr(err, "organization "+name)
	}
	return org, nil
}

// OrgUpdate edits descriptive fields; nil fields are left alone.
type OrgUpdate struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
	Website     *string `json:"website"`
	Location    *string `json:"location"`
	Email       *string `json:"email"`
}

func (s *OrgService) Update(ctx context.Context, actor *Actor, name string, in OrgUpdate) (*models.Org, error) {
	org, _, err := s.manage(ctx, actor, name)
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst *string
		src *string
	}{
		{&org.DisplayName, in.DisplayName},
		{&org.Description, in.Description},
		{&org.Website, in.Website},
		{&org.Location, in.Location},
		{&org.Email, in.Email},
	} {
		if f.src != nil {
			*f.dst = strings.TrimSpace(*f.src)
		}
	}
	if err := s.db.UpdateOrg(ctx, org); err != nil {
		return nil, mapDBErr(err, "organization "+name)
	}
	return org, nil
}

func (s *OrgService) ListForUser(ctx context.Context, username string) ([]models.Org, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	orgs, err := s.db.ListUserOrgs(ctx, user.ID)
	return orgs, mapDBErr(err, "list organizations")
}

func (s *OrgService) Members(ctx context.Context, name string) ([]models.OrgMember, error) {
	org, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	members, err := s.db.ListOrgMembers(ctx, org.ID)
	return members, mapDBErr(err, "list members")
}

// Repositories lists the organization's repositories; private ones only for members.
func (s *OrgService) Repositories(ctx context.Context, name string, viewer *Actor) ([]models.Repository, error) {
	org, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	role, err := s.role(ctx, org.ID, viewer)
	if err != nil {
		return nil, err
	}
	repos, err := s.db.ListOrgRepositories(ctx, org.ID, role != "" || (viewer != nil && viewer.IsAdmin))
	return repos, mapDBErr(err, "list repositories")
}

// role returns the actor's membership role in the organization, or "".
func (s *OrgService) role(ctx context.Context, orgID int64, actor *Actor) (string, error) {
	if !actor.authenticated() {
		return "", nil
	}
	m, err := s.db.GetOrgMember(ctx, orgID, actor.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

// manage loads the organization and requires the actor to be an owner or admin of it.
func (s *OrgService) manage(ctx context.Context, actor *Actor, name string) (*models.Org, string, error) {
	if !actor.authenticated() {
		return nil, "", forbidden("organization management requires authentication")
	}
	org, err := s.Get(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if actor.IsAdmin {
		return org, models.OrgRoleOwner, nil
	}
	role, err := s.role(ctx, org.ID, actor)
	if err != nil {
		return nil, "", err
	}
	if role != models.OrgRoleOwner && role != models.OrgRoleAdmin {
		return nil, "", forbidden("manage organization %s", name)
	}
	return org, role, nil
}

func (s *OrgService) AddMember(ctx context.Context, actor *Actor, orgName, username, role string) (*models.OrgMember, error) {
	if role == "" {
		role = models.OrgRoleMember
	}
	if !models.IsOrgRole(role) {
		return nil, invalid("invalid role %q", role)
	}
	org, actorRole, err := s.manage(ctx, actor, orgName)
	if err != nil {
		return nil, err
	}
	if role == models.OrgRoleOwner && actorRole != models.OrgRoleOwner {
		return nil, forbidden("only owners may add owners")
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	m := &models.OrgMember{OrgID: org.ID, UserID: user.ID, Username: user.Username, Role: role}
	if err := s.db.AddOrgMember(ctx, m); err != nil {
		return nil, mapDBErr(err, "member "+username)
	}
	return m, nil
}

func (s *OrgService) UpdateMemberRole(ctx context.Context, actor *Actor, orgName, username, role string) error {
	if !models.IsOrgRole(role) {
		return invalid("invalid role %q", role)
	}
	org, actorRole, err := s.manage(ctx, actor, orgName)
	if err != nil {
		return err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return mapDBErr(err, "user "+username)
	}
	current, err := s.db.GetOrgMember(ctx, org.ID, user.ID)
	if err != nil {
		return mapDBErr(err, "member "+username)
	}
	if (role == models.OrgRoleOwner || current.Role == models.OrgRoleOwner) && actorRole != models.OrgRoleOwner {
		return forbidden("only owners may change owner membership")
	}
	if current.Role == models.OrgRoleOwner && role != models.OrgRoleOwner {
		if err := s.requireAnotherOwner(ctx, org.ID, user.ID); err != nil {
			return err
		}
	}
	return mapDBErr(s.db.UpdateOrgMemberRole(ctx, org.ID, user.ID, role), "member "+username)
}

// RemoveMember removes username from the organization. Members may remove themselves.
func (s *OrgService) RemoveMember(ctx context.Context, actor *Actor, orgName, username string) error {
	if !actor.authenticated() {
		return forbidden("organization management requires authentication")
	}
	org, err := s.Get(ctx, orgName)
	if err != nil {
		return err
	}
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return mapDBErr(err, "user "+username)
	}
	current, err := s.db.GetOrgMember(ctx, org.ID, user.ID)
	if err != nil {
		return mapDBErr(err, "member "+username)
	}
	if user.ID != actor.ID {
		_, actorRole, err := s.manage(ctx, actor, orgName)
		if err != nil {
			return err
		}
		if current.Role == models.OrgRoleOwner && actorRole != models.OrgRoleOwner {
			return forbidden("only owners may remove owners")
		}
	}
	if current.Role == models.OrgRoleOwner {
		if err := s.requireAnotherOwner(ctx, org.ID, user.ID); err != nil {
			return err
		}
	}
	return mapDBErr(s.db.RemoveOrgMember(ctx, org.ID, user.ID), "member "+username)
}

func (s *OrgService) requireAnotherOwner(ctx context.Context, orgID, leavingID int64) error {
	members, err := s.db.ListOrgMembers(ctx, orgID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Role == models.OrgRoleOwner && m.UserID != leavingID {
			return nil
		}
	}
	return invalidState("an organization must keep at least one owner")
}

// Delete removes an empty organization. Only owners may delete it.
func (s *OrgService) Delete(ctx context.Context, actor *Actor, name string) error {
	org, role, err := s.manage(ctx, actor, name)
	if err != nil {
		return err
	}
	if role != models.OrgRoleOwner {
		return forbidden("only owners may delete %s", name)
	}
	repos, err := s.db.ListOrgRepositories(ctx, org.ID, true)
	if err != nil {
		return err
	}
	if len(repos) > 0 {
		return invalidState("organization %s still owns %d repositories", name, len(repos))
	}
	return mapDBErr(s.db.DeleteOrg(ctx, org.ID), "organization "+name)
}
