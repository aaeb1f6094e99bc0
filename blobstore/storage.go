// Package blobstore provides the byte-level storages behind the blob cache
// service: MinIO/S3 buckets, Redis hashes and an in-process map.
package blobstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned by Get when no blob exists at the path.
var ErrNotFound = errors.New("blobstore: blob not found")

// IsNotFound reports whether err means the blob does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Metadata travels with every blob.
type Metadata struct {
	ContentType string
	StoredAt    time.Time
	// ExpiresAt is nil for blobs which never expire.
	ExpiresAt *time.Time
}

// Expired reports whether the blob is no longer valid at now.
func (m Metadata) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Storage stores opaque blobs addressed by container and path.
type Storage interface {
	// Put writes data, replacing any existing blob at the path.
	Put(ctx context.Context, container, path string, data []byte, meta Metadata) error
	// Get returns ErrNotFound when nothing is stored at the path.
	Get(ctx context.Context, container, path string) ([]byte, Metadata, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, container, path string) error
	// DeletePrefix removes every blob whose path starts with prefix.
	DeletePrefix(ctx context.Context, container, prefix string) error
}

// DefaultQueryTimeout bounds a single storage round trip.
const DefaultQueryTimeout = 5 * time.Second

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t, nil
}
