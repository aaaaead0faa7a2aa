// Package media provides the Media domain entity.
package media

import "time"

// Media is a canonical reference to a piece of playable audio at an
// external source. Media is shared across playlists: it is created
// lazily on first reference and never mutated thereafter.
type Media struct {
	ID         string        // internal id
	SourceType string        // e.g. "youtube", "soundcloud", "spotify"
	SourceID   string        // id within the source
	Duration   time.Duration // full duration of the source media
	Artist     string
	Title      string
	CreatedAt  time.Time
}

// Key identifies a Media by its unique (sourceType, sourceID) pair.
type Key struct {
	SourceType string
	SourceID   string
}

// Ref is a single lookup request passed to a Source Resolver.
type Ref struct {
	SourceType string
	SourceID   string
}
