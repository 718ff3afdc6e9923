package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/odvcencio/codehub/internal/config"
)

// ErrNotFound is returned by Read when no object exists at the key.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey is returned for empty keys or keys that escape the backend root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Backend abstracts blob storage for release asset payloads. Implemented by local FS and S3.
type Backend interface {
	// Read returns a reader for the object at the given key.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Write stores size bytes from r at the given key.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Has returns true if the key exists.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes the object at the given key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalBackend(cfg.Path)
	case "s3":
		return NewS3Backend(ctx, S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// ReleaseAssetKey returns a fresh key for an asset payload of the given release.
func ReleaseAssetKey(repoID, releaseID int64) string {
	return fmt.Sprintf("releases/%d/%d/%s", repoID, releaseID, uuid.NewString())
}

// cleanKey normalizes a slash separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
