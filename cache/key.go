package cache

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// MaxKeyLength is the maximum allowed length for a cache key path.
const MaxKeyLength = 1024

// Key addresses a single cached value. Implementations must be pure
// functions of the values they were built from: two keys built from the same
// inputs return the same Key().
type Key interface {
	Key() string
}

// BlobKey is a Key which also names the blob container its value lives in.
// Blob directives only accept BlobKey implementations.
type BlobKey interface {
	Key
	Container() Container
}

// Container is a logical blob container.
type Container string

const (
	ContainerCache              Container = "cache"
	ContainerPublicContent      Container = "publiccontent"
	ContainerPrivateContent     Container = "privatecontent"
	ContainerPublicReleaseFiles Container = "publicreleasefiles"
)

var knownContainers = map[Container]bool{
	ContainerCache:              true,
	ContainerPublicContent:      true,
	ContainerPrivateContent:     true,
	ContainerPublicReleaseFiles: true,
}

func (c Container) String() string {
	return string(c)
}

// Validate returns a configuration error for containers this package does not know.
func (c Container) Validate() error {
	if !knownContainers[c] {
		return configErrorf("cache: unknown blob container %q", string(c))
	}
	return nil
}

// ValidateKey checks a key path is usable by every backend.
func ValidateKey(key Key) error {
	if key == nil {
		return errors.Wrap(ErrInvalidKey, "key is nil")
	}
	path := key.Key()
	if strings.TrimSpace(path) == "" {
		return errors.Wrap(ErrInvalidKey, "key path is empty")
	}
	if len(path) > MaxKeyLength {
		return errors.Wrapf(ErrInvalidKey, "key path exceeds %d characters", MaxKeyLength)
	}
	if strings.ContainsAny(path, "\n\r") {
		return errors.Wrapf(ErrInvalidKey, "key path %q contains a line break", path)
	}
	if blobKey, ok := key.(BlobKey); ok {
		if err := blobKey.Container().Validate(); err != nil {
			return err
		}
		if strings.HasPrefix(path, "/") {
			return errors.Wrapf(ErrInvalidKey, "blob key path %q must be relative", path)
		}
	}
	return nil
}

// JoinPath builds a blob path from segments, skipping empty ones.
func JoinPath(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, "/")
}

// StringKey is a Key for in-memory caches addressed by a literal string.
type StringKey string

func (k StringKey) Key() string { return string(k) }

type blobKey struct {
	container Container
	path      string
}

func (k blobKey) Key() string          { return k.path }
func (k blobKey) Container() Container { return k.container }

// NewBlobKey returns a BlobKey for an arbitrary container and path, for
// callers such as operator tooling which have no typed key to hand.
func NewBlobKey(container Container, path string) BlobKey {
	return blobKey{container: container, path: path}
}
