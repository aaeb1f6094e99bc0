package content

import (
	"github.com/google/uuid"
)

// PublicationTree is the navigation tree of themes and their publications.
type PublicationTree struct {
	Themes []ThemeTree `json:"themes" msgpack:"themes"`
}

type ThemeTree struct {
	ID           uuid.UUID             `json:"id" msgpack:"id"`
	Title        string                `json:"title" msgpack:"title"`
	Summary      string                `json:"summary,omitempty" msgpack:"summary,omitempty"`
	Publications []PublicationTreeNode `json:"publications" msgpack:"publications"`
}

type PublicationTreeNode struct {
	ID                   uuid.UUID  `json:"id" msgpack:"id"`
	Title                string     `json:"title" msgpack:"title"`
	Slug                 string     `json:"slug" msgpack:"slug"`
	LatestReleaseHasData bool       `json:"latestReleaseHasData" msgpack:"latestReleaseHasData"`
	SupersededBy         *uuid.UUID `json:"supersededBy,omitempty" msgpack:"supersededBy,omitempty"`
}

// Superseded reports whether another publication replaces this one.
func (n PublicationTreeNode) Superseded() bool {
	return n.SupersededBy != nil
}

// Publication finds a publication anywhere in the tree by slug.
func (t PublicationTree) Publication(slug string) (PublicationTreeNode, bool) {
	for _, theme := range t.Themes {
		for _, pub := range theme.Publications {
			if pub.Slug == slug {
				return pub, true
			}
		}
	}
	return PublicationTreeNode{}, false
}

// PublicationCount is the number of publications across all themes.
func (t PublicationTree) PublicationCount() int {
	var n int
	for _, theme := range t.Themes {
		n += len(theme.Publications)
	}
	return n
}
