package content

import (
	"testing"

	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedKeys(t *testing.T) {
	assert.Equal(t, "publiccontent/publication-tree.json", PublicationTreeKey().String())
	assert.Equal(t, "publiccontent/glossary.json", GlossaryKey().String())
	assert.Equal(t, "themes", ThemesMemoryKey().Key())
	require.NoError(t, cache.ValidateKey(PublicationTreeKey()))
}

func TestSlugKeys(t *testing.T) {
	key, err := PublicationKey("pupil-absence-in-schools-in-england")
	require.NoError(t, err)
	assert.Equal(t, "publications/pupil-absence-in-schools-in-england/publication.json", key.Key())
	assert.Equal(t, cache.ContainerPublicContent, key.Container())

	key, err = ReleaseKey("pupil-absence-in-schools-in-england", "2022-23")
	require.NoError(t, err)
	assert.Equal(t, "publications/pupil-absence-in-schools-in-england/releases/2022-23.json", key.Key())

	key, err = MethodologyKey("pupil-absence-statistics-methodology")
	require.NoError(t, err)
	assert.Equal(t, "methodologies/pupil-absence-statistics-methodology.json", key.Key())

	mem, err := PublicationMemoryKey("exclusions")
	require.NoError(t, err)
	assert.Equal(t, "publication:exclusions", mem.Key())
}

func TestInvalidSlugs(t *testing.T) {
	for _, slug := range []string{"", "Pupil-Absence", "a--b", "-a", "a/b", "../etc"} {
		_, err := PublicationKey(slug)
		assert.ErrorIs(t, err, ErrInvalidSlug, slug)
		assert.ErrorIs(t, err, cache.ErrInvalidKey, slug)
	}
	_, err := ReleaseKey("exclusions", "")
	assert.ErrorIs(t, err, ErrInvalidSlug)
	_, err = MethodologyKey("bad slug")
	assert.ErrorIs(t, err, ErrInvalidSlug)
	_, err = PublicationMemoryKey("")
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestReleaseContentFolderKey(t *testing.T) {
	id := uuid.MustParse("0b0e1e1a-6a4b-4f0e-9c4b-0f3a8c2d9e11")
	key, err := ReleaseContentFolderKey(id)
	require.NoError(t, err)
	assert.Equal(t, cache.ContainerCache, key.Container())
	assert.Equal(t, "releases/0b0e1e1a-6a4b-4f0e-9c4b-0f3a8c2d9e11", key.Key())

	_, err = ReleaseContentFolderKey(uuid.Nil)
	assert.ErrorIs(t, err, cache.ErrInvalidKey)
}
