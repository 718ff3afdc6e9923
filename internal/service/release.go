package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
	"github.com/odvcencio/codehub/internal/storage"
)

const maxAssetNameLen = 255

type ReleaseService struct {
	db       database.DB
	access   *AccessService
	notify   *NotificationService
	activity *ActivityService
	blobs    storage.Backend
}

func NewReleaseService(db database.DB, access *AccessService, notify *NotificationService, activity *ActivityService, blobs storage.Backend) *ReleaseService {
	return &ReleaseService{db: db, access: access, notify: notify, activity: activity, blobs: blobs}
}

type ReleaseInput struct {
	TagName         string `json:"tag_name"`
	TargetCommitish string `json:"target_commitish"`
	Name            string `json:"name"`
	Body            string `json:"body"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
}

func validateTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" || !validBranchName.MatchString(tag) || strings.Contains(tag, "..") {
		return "", invalid("invalid tag name %q", tag)
	}
	return tag, nil
}

func (s *ReleaseService) Create(ctx context.Context, actor *Actor, owner, name string, in ReleaseInput) (*models.Release, error) {
	repo, err := s.access.Repository(ctx, owner, name, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionRelease); err != nil {
		return nil, err
	}
	tag, err := validateTag(in.TagName)
	if err != nil {
		return nil, err
	}
	body, err := validateBody(in.Body, false)
	if err != nil {
		return nil, err
	}
	target := strings.TrimSpace(in.TargetCommitish)
	if target == "" {
		target = repo.DefaultBranch
	}
	rel := &models.Release{
		RepoID:          repo.ID,
		TagName:         tag,
		TargetCommitish: target,
		Name:            clipText(in.Name, maxTitleLen),
		Body:            body,
		Draft:           in.Draft,
		Prerelease:      in.Prerelease,
		AuthorID:        actor.ID,
	}
	if !rel.Draft {
		now := time.Now().UTC()
		rel.PublishedAt = &now
	}
	if err := s.db.CreateRelease(ctx, rel); err != nil {
		return nil, mapDBErr(err, "release "+tag)
	}
	if !rel.Draft {
		s.published(ctx, actor, repo, rel)
	}
	return rel, nil
}

func (s *ReleaseService) published(ctx context.Context, actor *Actor, repo *models.Repository, rel *models.Release) {
	s.notify.NotifyReleasePublished(ctx, repo, rel, actor.ID)
	s.activity.Record(ctx, actor, models.EventRelease, repo, map[string]any{"action": "published", "tag": rel.TagName})
}

// canSeeDrafts reports whether viewer may see unpublished releases of repo.
func (s *ReleaseService) canSeeDrafts(ctx context.Context, repo *models.Repository, viewer *Actor) bool {
	ok, err := s.access.CanMutate(ctx, repo, viewer, ActionRelease)
	if err != nil {
		slog.Warn("release draft visibility", "repo", repo.FullName(), "error", err)
		return false
	}
	return ok
}

func (s *ReleaseService) List(ctx context.Context, owner, name string, viewer *Actor) ([]models.Release, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, err
	}
	releases, err := s.db.ListReleases(ctx, repo.ID, s.canSeeDrafts(ctx, repo, viewer))
	return releases, mapDBErr(err, "list releases")
}

func (s *ReleaseService) load(ctx context.Context, owner, name, tag string, viewer *Actor) (*models.Repository, *models.Release, error) {
	repo, err := s.access.Repository(ctx, owner, name, viewer)
	if err != nil {
		return nil, nil, err
	}
	rel, err := s.db.GetRelease(ctx, repo.ID, tag)
	if err != nil {
		return nil, nil, mapDBErr(err, "release "+tag)
	}
	if rel.Draft && !s.canSeeDrafts(ctx, repo, viewer) {
		return nil, nil, fmt.Errorf("release %s: %w", tag, ErrNotFound)
	}
	return repo, rel, nil
}

// Get returns the release with its assets.
func (s *ReleaseService) Get(ctx context.Context, owner, name, tag string, viewer *Actor) (*models.Release, error) {
	_, rel, err := s.load(ctx, owner, name, tag, viewer)
	if err != nil {
		return nil, err
	}
	if rel.Assets, err = s.db.ListReleaseAssets(ctx, rel.ID); err != nil {
		return nil, mapDBErr(err, "list release assets")
	}
	return rel, nil
}

// ReleaseUpdate edits a release; nil fields are left alone. Publishing a draft
// (Draft set to false) stamps published_at and notifies watchers.
type ReleaseUpdate struct {
	TagName         *string `json:"tag_name"`
	TargetCommitish *string `json:"target_commitish"`
	Name            *string `json:"name"`
	Body            *string `json:"body"`
	Draft           *bool   `json:"draft"`
	Prerelease      *bool   `json:"prerelease"`
}

func (s *ReleaseService) Update(ctx context.Context, actor *Actor, owner, name, tag string, in ReleaseUpdate) (*models.Release, error) {
	repo, rel, err := s.load(ctx, owner, name, tag, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionRelease); err != nil {
		return nil, err
	}
	if in.TagName != nil {
		if rel.TagName, err = validateTag(*in.TagName); err != nil {
			return nil, err
		}
	}
	if in.TargetCommitish != nil {
		rel.TargetCommitish = strings.TrimSpace(*in.TargetCommitish)
	}
	if in.Name != nil {
		rel.Name = clipText(*in.Name, maxTitleLen)
	}
	if in.Body != nil {
		if rel.Body, err = validateBody(*in.Body, false); err != nil {
			return nil, err
		}
	}
	if in.Prerelease != nil {
		rel.Prerelease = *in.Prerelease
	}
	publishing := false
	if in.Draft != nil && *in.Draft != rel.Draft {
		if !*in.Draft {
			now := time.Now().UTC()
			rel.PublishedAt = &now
			publishing = true
		} else {
			rel.PublishedAt = nil
		}
		rel.Draft = *in.Draft
	}
	if err := s.db.UpdateRelease(ctx, rel); err != nil {
		return nil, mapDBErr(err, "release "+rel.TagName)
	}
	if publishing {
		s.published(ctx, actor, repo, rel)
	}
	return rel, nil
}

// Delete removes the release, its asset rows, and then their blobs.
func (s *ReleaseService) Delete(ctx context.Context, actor *Actor, owner, name, tag string) error {
	repo, rel, err := s.load(ctx, owner, name, tag, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionRelease); err != nil {
		return err
	}
	assets, err := s.db.ListReleaseAssets(ctx, rel.ID)
	if err != nil {
		return mapDBErr(err, "list release assets")
	}
	if err := s.db.DeleteRelease(ctx, rel.ID); err != nil {
		return mapDBErr(err, "release "+tag)
	}
	for _, a := range assets {
		s.deleteBlob(ctx, a.StorageKey)
	}
	return nil
}

func (s *ReleaseService) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("delete release asset blob", "key", key, "error", err)
	}
}

// AssetInput describes an uploaded asset payload of Size bytes.
type AssetInput struct {
	Name        string
	Label       string
	ContentType string
	Size        int64
}

// UploadAsset stores the payload in blob storage and records the asset. A
// duplicate name within the release fails with ErrDuplicate and leaves no blob behind.
func (s *ReleaseService) UploadAsset(ctx context.Context, actor *Actor, owner, name, tag string, in AssetInput, r io.Reader) (*models.ReleaseAsset, error) {
	repo, rel, err := s.load(ctx, owner, name, tag, actor)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionRelease); err != nil {
		return nil, err
	}
	assetName := strings.TrimSpace(in.Name)
	if assetName == "" || len(assetName) > maxAssetNameLen || assetName != path.Base(assetName) || assetName == ".." {
		return nil, invalid("invalid asset name %q", in.Name)
	}
	if in.Size < 0 {
		return nil, invalid("asset size must not be negative")
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := storage.ReleaseAssetKey(repo.ID, rel.ID)
	if err := s.blobs.Write(ctx, key, r, in.Size, contentType); err != nil {
		return nil, fmt.Errorf("store asset %s: %w", assetName, err)
	}
	asset := &models.ReleaseAsset{
		ReleaseID:   rel.ID,
		Name:        assetName,
		Label:       clipText(in.Label, maxAssetNameLen),
		ContentType: contentType,
		Size:        in.Size,
		StorageKey:  key,
		UploaderID:  actor.ID,
	}
	if err := s.db.CreateReleaseAsset(ctx, asset); err != nil {
		s.deleteBlob(ctx, key)
		return nil, mapDBErr(err, "asset "+assetName)
	}
	return asset, nil
}

func (s *ReleaseService) asset(ctx context.Context, rel *models.Release, id int64) (*models.ReleaseAsset, error) {
	a, err := s.db.GetReleaseAsset(ctx, id)
	if err != nil {
		return nil, mapDBErr(err, "release asset")
	}
	if a.ReleaseID != rel.ID {
		return nil, fmt.Errorf("release asset: %w", ErrNotFound)
	}
	return a, nil
}

// DownloadAsset opens the asset payload and counts the download. The caller closes the reader.
func (s *ReleaseService) DownloadAsset(ctx context.Context, owner, name, tag string, id int64, viewer *Actor) (*models.ReleaseAsset, io.ReadCloser, error) {
	_, rel, err := s.load(ctx, owner, name, tag, viewer)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.asset(ctx, rel, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Read(ctx, a.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("asset payload %s: %w", a.Name, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read asset %s: %w", a.Name, err)
	}
	if err := s.db.IncrementAssetDownloads(ctx, a.ID); err != nil {
		rc.Close()
		return nil, nil, mapDBErr(err, "release asset")
	}
	a.DownloadCount++
	return a, rc, nil
}

func (s *ReleaseService) DeleteAsset(ctx context.Context, actor *Actor, owner, name, tag string, id int64) error {
	repo, rel, err := s.load(ctx, owner, name, tag, actor)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, repo, actor, ActionRelease); err != nil {
		return err
	}
	a, err := s.asset(ctx, rel, id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteReleaseAsset(ctx, a.ID); err != nil {
		return mapDBErr(err, "release asset")
	}
	s.deleteBlob(ctx, a.StorageKey)
	return nil
}
