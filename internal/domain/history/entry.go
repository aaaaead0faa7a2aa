// Package history provides the HistoryEntry domain entity: the durable
// record of a single past or currently-playing track.
package history

import "time"

// MediaSnapshot is a value copy of a PlaylistItem's playable fields,
// taken at the moment a HistoryEntry is constructed. Later edits to the
// originating PlaylistItem never affect a sealed or playing entry.
type MediaSnapshot struct {
	MediaID string
	Artist  string
	Title   string
	Start   time.Duration
	End     time.Duration
}

// Entry is a durable record of one play: either the currently playing
// track (while its upvotes/downvotes/favorites are still being
// accumulated) or a sealed past play.
type Entry struct {
	ID             string
	UserID         string
	PlaylistID     string
	PlaylistItemID string
	Media          MediaSnapshot
	PlayedAt       time.Time

	// Upvotes, Downvotes, and Favorites are populated only once, at the
	// following advance, when this entry is sealed. Nil before sealing.
	Upvotes   []string
	Downvotes []string
	Favorites []string
}

// Sealed reports whether the entry has been closed out with final vote
// tallies. A sealed entry is never rewritten.
func (e *Entry) Sealed() bool {
	return e != nil && e.Upvotes != nil
}

// Seal attaches the final vote tallies to the entry. It is a
// programmer error to call Seal twice on the same entry; callers
// enforce this by only sealing the "previous" entry once per advance.
func (e *Entry) Seal(upvotes, downvotes, favorites []string) {
	e.Upvotes = upvotes
	e.Downvotes = downvotes
	e.Favorites = favorites
}

// Duration returns the play's wall-clock length.
func (m MediaSnapshot) Duration() time.Duration {
	return m.End - m.Start
}
