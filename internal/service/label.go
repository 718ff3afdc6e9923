package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

var validColor = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

type LabelService struct {
	db     database.DB
	access *AccessService
}

func NewLabelService(db database.DB, access *AccessService) *LabelService {
	return &LabelService{db: db, access: access}
}

type LabelInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

func normalizeLabel(in LabelInput) (LabelInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 50 {
		return in, invalid("label name must be 1-50 characters")
	}
	in.Color = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.Color), "#"))
	if !validColor.MatchString(in.Color) {
		return in, invalid("label color must be 6 hex digits, got %q", in.Color)
	}
	in.Description = clipText(in.Description, 100)
	return in, nil
}

func (s *LabelService) Create(ctx context.Context, actor *Actor, owner, name string, in LabelInput) (*models.Label, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return nil, err
	}
	if in, err = normalizeLabel(in); err != nil {
		return nil, err
	}
	l := &models.Label{RepoID: repo.ID, Name: in.Name, Color: in.Color, Description: in.Description}
	if err := s.db.CreateLabel(ctx, l); err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("label %q", in.Name))
	}
	return l, nil
}

func (s *LabelService) List(ctx context.Context, owner, name string, viewer *Actor) ([]models.Label, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	labels, err := s.db.ListLabels(ctx, repo.ID)
	return labels, mapDBErr(err, "list labels")
}

func (s *LabelService) Get(ctx context.Context, owner, name, label string, viewer *Actor) (*models.Label, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	l, err := s.db.GetLabel(ctx, repo.ID, label)
	if err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("label %q", label))
	}
	return l, nil
}

// Update replaces the label's name, color and description. Empty input fields keep the current value.
func (s *LabelService) Update(ctx context.Context, actor *Actor, owner, name, label string, in LabelInput) (*models.Label, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return nil, err
	}
	l, err := s.db.GetLabel(ctx, repo.ID, label)
	if err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("label %q", label))
	}
	if in.Name == "" {
		in.Name = l.Name
	}
	if in.Color == "" {
		in.Color = l.Color
	}
	if in.Description == "" {
		in.Description = l.Description
	}
	if in, err = normalizeLabel(in); err != nil {
		return nil, err
	}
	l.Name, l.Color, l.Description = in.Name, in.Color, in.Description
	if err := s.db.UpdateLabel(ctx, l); err != nil {
		return nil, mapDBErr(err, fmt.Sprintf("label %q", in.Name))
	}
	return l, nil
}

func (s *LabelService) Delete(ctx context.Context, actor *Actor, owner, name, label string) error {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionLabel); err != nil {
		return err
	}
	l, err := s.db.GetLabel(ctx, repo.ID, label)
	if err != nil {
		return mapDBErr(err, fmt.Sprintf("label %q", label))
	}
	return mapDBErr(s.db.DeleteLabel(ctx, l.ID), fmt.Sprintf("label %q", label))
}
