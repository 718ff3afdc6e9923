package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/odvcencio/codehub/internal/models"
)

// --- SSH Keys ---

func (s *sqlStore) CreateSSHKey(ctx context.Context, key *models.SSHKey) error {
	key.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO ssh_keys (user_id, title, public_key, fingerprint, key_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key.UserID, key.Title, key.Key, key.Fingerprint, key.KeyType, key.CreatedAt)
	if err != nil {
		return normalizeErr(err)
	}
	key.ID = id
	return nil
}

func scanSSHKey(row rowScanner, k *models.SSHKey) error {
	return row.Scan(&k.ID, &k.UserID, &k.Title, &k.Key, &k.Fingerprint, &k.KeyType, &k.CreatedAt, &k.LastUsed)
}

func (s *sqlStore) ListSSHKeys(ctx context.Context, userID int64) ([]models.SSHKey, error) {
	rows, err := s.h().query(ctx,
		`SELECT id, user_id, title, public_key, fingerprint, key_type, created_at, last_used
		 FROM ssh_keys WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, k *models.SSHKey) error { return scanSSHKey(r, k) })
}

func (s *sqlStore) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error) {
	k := &models.SSHKey{}
	err := scanSSHKey(s.h().queryRow(ctx,
		`SELECT id, user_id, title, public_key, fingerprint, key_type, created_at, last_used
		 FROM ssh_keys WHERE fingerprint = ?`, fingerprint), k)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (s *sqlStore) DeleteSSHKey(ctx context.Context, id, userID int64) error {
	return s.h().execOne(ctx, `DELETE FROM ssh_keys WHERE id = ? AND user_id = ?`, id, userID)
}

// --- Access Tokens ---

func (s *sqlStore) CreateAccessToken(ctx context.Context, token *models.AccessToken) error {
	token.CreatedAt = now()
	id, err := s.h().insert(ctx,
		`INSERT INTO access_tokens (user_id, name, token_hash, token_prefix, scopes, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.UserID, token.Name, token.TokenHash, token.TokenPrefix, encodeList(token.Scopes), token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return normalizeErr(err)
	}
	token.ID = id
	return nil
}

const accessTokenColumns = `id, user_id, name, token_hash, token_prefix, scopes, created_at, last_used, expires_at`

func scanAccessToken(row rowScanner, t *models.AccessToken) error {
	return row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.TokenPrefix, listColumn{&t.Scopes},
		&t.CreatedAt, &t.LastUsed, &t.ExpiresAt)
}

func (s *sqlStore) GetAccessTokenByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	t := &models.AccessToken{}
	if err := scanAccessToken(s.h().queryRow(ctx,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE token_hash = ?`, tokenHash), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *sqlStore) ListAccessTokens(ctx context.Context, userID int64) ([]models.AccessToken, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, t *models.AccessToken) error { return scanAccessToken(r, t) })
}

func (s *sqlStore) TouchAccessToken(ctx context.Context, id int64, at time.Time) error {
	return s.h().execOne(ctx, `UPDATE access_tokens SET last_used = ? WHERE id = ?`, at.UTC(), id)
}

func (s *sqlStore) DeleteAccessToken(ctx context.Context, id, userID int64) error {
	return s.h().execOne(ctx, `DELETE FROM access_tokens WHERE id = ? AND user_id = ?`, id, userID)
}
