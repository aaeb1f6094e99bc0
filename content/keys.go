package content

import (
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ErrInvalidSlug is returned for empty or malformed slugs. It is also an
// invalid cache key.
var ErrInvalidSlug = errors.Mark(errors.New("content: invalid slug"), cache.ErrInvalidKey)

// BlobKey locates a cached content blob.
type BlobKey struct {
	container cache.Container
	path      string
}

var _ cache.BlobKey = BlobKey{}

func (k BlobKey) Key() string                { return k.path }
func (k BlobKey) Container() cache.Container { return k.container }
func (k BlobKey) String() string             { return k.container.String() + "/" + k.path }

// MemoryKey is a process-local cache key.
type MemoryKey string

var _ cache.Key = MemoryKey("")

func (k MemoryKey) Key() string { return string(k) }

func checkSlug(kind, slug string) error {
	if !slugPattern.MatchString(slug) {
		return errors.Wrapf(ErrInvalidSlug, "%s slug %q", kind, slug)
	}
	return nil
}

// PublicationTreeKey is the whole theme and publication navigation tree.
func PublicationTreeKey() BlobKey {
	return BlobKey{container: cache.ContainerPublicContent, path: "publication-tree.json"}
}

// GlossaryKey is the glossary shown on the public site.
func GlossaryKey() BlobKey {
	return BlobKey{container: cache.ContainerPublicContent, path: "glossary.json"}
}

func PublicationKey(slug string) (BlobKey, error) {
	if err := checkSlug("publication", slug); err != nil {
		return BlobKey{}, err
	}
	return BlobKey{
		container: cache.ContainerPublicContent,
		path:      cache.JoinPath("publications", slug, "publication.json"),
	}, nil
}

func ReleaseKey(publicationSlug, releaseSlug string) (BlobKey, error) {
	if err := checkSlug("publication", publicationSlug); err != nil {
		return BlobKey{}, err
	}
	if err := checkSlug("release", releaseSlug); err != nil {
		return BlobKey{}, err
	}
	return BlobKey{
		container: cache.ContainerPublicContent,
		path:      cache.JoinPath("publications", publicationSlug, "releases", releaseSlug+".json"),
	}, nil
}

// ReleaseContentFolderKey is the folder holding everything cached for one
// release version. Deleting it invalidates the release.
func ReleaseContentFolderKey(releaseID uuid.UUID) (BlobKey, error) {
	if releaseID == uuid.Nil {
		return BlobKey{}, errors.Wrap(cache.ErrInvalidKey, "content: release id is nil")
	}
	return BlobKey{
		container: cache.ContainerCache,
		path:      cache.JoinPath("releases", releaseID.String()),
	}, nil
}

func MethodologyKey(slug string) (BlobKey, error) {
	if err := checkSlug("methodology", slug); err != nil {
		return BlobKey{}, err
	}
	return BlobKey{
		container: cache.ContainerPublicContent,
		path:      cache.JoinPath("methodologies", slug+".json"),
	}, nil
}

// ThemesMemoryKey holds the publication tree in process memory.
func ThemesMemoryKey() MemoryKey {
	return "themes"
}

func PublicationMemoryKey(slug string) (MemoryKey, error) {
	if err := checkSlug("publication", slug); err != nil {
		return "", err
	}
	return MemoryKey("publication:" + slug), nil
}
