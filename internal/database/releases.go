package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Releases ---

const releaseColumns = `id, repo_id, tag_name, target_commitish, name, body, draft, prerelease, author_id, created_at, published_at`

func scanRelease(row rowScanner, r *models.Release) error {
	return row.Scan(&r.ID, &r.RepoID, &r.TagName, &r.TargetCommitish, &r.Name, &r.Body, &r.Draft, &r.Prerelease,
		&r.AuthorID, &r.CreatedAt, &r.PublishedAt)
}

func (s *sqlStore) CreateRelease(ctx context.Context, r *models.Release) error {
	r.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO releases (repo_id, tag_name, target_commitish, name, body, draft, prerelease, author_id, created_at, published_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RepoID, r.TagName, r.TargetCommitish, r.Name, r.Body, r.Draft, r.Prerelease, r.AuthorID, r.CreatedAt, r.PublishedAt)
	if err != nil {
		return normalizeErr(err)
	}
	r.ID = id
	return nil
}

func (s *sqlStore) GetRelease(ctx context.Context, repoID int64, tagName string) (*models.Release, error) {
	r := &models.Release{}
	if err := scanRelease(s.h().queryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE repo_id = ? AND tag_name = ?`, repoID, tagName), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) GetReleaseByID(ctx context.Context, id int64) (*models.Release, error) {
	r := &models.Release{}
	if err := scanRelease(s.h().queryRow(ctx, `SELECT `+releaseColumns+` FROM releases WHERE id = ?`, id), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *sqlStore) ListReleases(ctx context.Context, repoID int64, includeDrafts bool) ([]models.Release, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+releaseColumns+` FROM releases
		 WHERE repo_id = ? AND (? OR draft = FALSE)
		 ORDER BY created_at DESC, id DESC`, repoID, includeDrafts)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, r *models.Release) error { return scanRelease(rs, r) })
}

func (s *sqlStore) UpdateRelease(ctx context.Context, r *models.Release) error {
	err := s.h().execOne(ctx,
		`UPDATE releases SET tag_name = ?, target_commitish = ?, name = ?, body = ?, draft = ?, prerelease = ?, published_at = ?
		 WHERE id = ?`,
		r.TagName, r.TargetCommitish, r.Name, r.Body, r.Draft, r.Prerelease, r.PublishedAt, r.ID)
	return normalizeErr(err)
}

func (s *sqlStore) DeleteRelease(ctx context.Context, id int64) error {
	return s.h().execOne(ctx, `DELETE FROM releases WHERE id = ?`, id)
}

// --- Release assets ---

const assetColumns = `id, release_id, name, label, content_type, size, download_count, storage_key, uploader_id, created_at`

func scanAsset(row rowScanner, a *models.ReleaseAsset) error {
	return row.Scan(&a.ID, &a.ReleaseID, &a.Name, &a.Label, &a.ContentType, &a.Size, &a.DownloadCount, &a.StorageKey,
		&a.UploaderID, &a.CreatedAt)
}

func (s *sqlStore) CreateReleaseAsset(ctx context.Context, a *models.ReleaseAsset) error {
	a.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO release_assets (release_id, name, label, content_type, size, storage_key, uploader_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ReleaseID, a.Name, a.Label, a.ContentType, a.Size, a.StorageKey, a.UploaderID, a.CreatedAt)
	if err != nil {
		return normalizeErr(err)
	}
	a.ID = id
	return nil
}

func (s *sqlStore) GetReleaseAsset(ctx context.Context, id int64) (*models.ReleaseAsset, error) {
	a := &models.ReleaseAsset{}
	if err := scanAsset(s.h().queryRow(ctx, `SELECT `+assetColumns+` FROM release_assets WHERE id = ?`, id), a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *sqlStore) ListReleaseAssets(ctx context.Context, releaseID int64) ([]models.ReleaseAsset, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+assetColumns+` FROM release_assets WHERE release_id = ? ORDER BY name`, releaseID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, a *models.ReleaseAsset) error { return scanAsset(rs, a) })
}

func (s *sqlStore) IncrementAssetDownloads(ctx context.Context, id int64) error {
	return s.h().execOne(ctx, `UPDATE release_assets SET download_count = download_count + 1 WHERE id = ?`, id)
}

func (s *sqlStore) DeleteReleaseAsset(ctx context.Context, id int64) error {
	return s.h().execOne(ctx, `DELETE FROM release_assets WHERE id = ?`, id)
}

// ListRepositoryAssetKeys returns the blob keys of every asset in the repository.
func (s *sqlStore) ListRepositoryAssetKeys(ctx context.Context, repoID int64) ([]string, error) {
	rows, err := s.h().query(ctx,
		`SELECT a.storage_key FROM release_assets a
		 JOIN releases r ON r.id = a.release_id
		 WHERE r.repo_id = ? ORDER BY a.id`, repoID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(rs *sql.Rows, key *string) error { return rs.Scan(key) })
}
