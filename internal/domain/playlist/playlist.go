// Package playlist provides the Playlist and PlaylistItem domain entities.
package playlist

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Playlist is an ordered list of PlaylistItem ids, owned by a single user.
type Playlist struct {
	ID           string
	AuthorUserID string
	Name         string
	ItemIDs      []string // ordered; Playlist exclusively owns this order
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Size returns the number of items in the playlist.
func (p *Playlist) Size() int {
	return len(p.ItemIDs)
}

// IndexOf returns the position of itemID in ItemIDs, or -1 if absent.
func (p *Playlist) IndexOf(itemID string) int {
	for i, id := range p.ItemIDs {
		if id == itemID {
			return i
		}
	}
	return -1
}

// Item is a single entry in a playlist: an immutable reference to a
// Media plus mutable display labels and a trim window.
type Item struct {
	ID        string
	MediaID   string
	Artist    string
	Title     string
	Start     time.Duration
	End       time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlaylistPatch describes a partial update to a Playlist's mutable fields.
type PlaylistPatch struct {
	Name *string `mapstructure:"name"`
}

// Patch describes a partial update to an Item's mutable fields.
// A nil field is left unchanged.
type Patch struct {
	Artist *string        `mapstructure:"artist"`
	Title  *string        `mapstructure:"title"`
	Start  *time.Duration `mapstructure:"start"`
	End    *time.Duration `mapstructure:"end"`
}

// DecodePlaylistPatch decodes a raw field map into a PlaylistPatch. A
// key absent from raw leaves the corresponding field nil (unchanged);
// this is why the patch is decoded from a map rather than unmarshaled
// straight from JSON, which cannot distinguish "absent" from "zero".
func DecodePlaylistPatch(raw map[string]any) (PlaylistPatch, error) {
	var patch PlaylistPatch
	if err := mapstructure.Decode(raw, &patch); err != nil {
		return PlaylistPatch{}, err
	}
	return patch, nil
}

// DecodePatch decodes a raw field map into an item Patch, same
// presence-vs-absence reasoning as DecodePlaylistPatch.
func DecodePatch(raw map[string]any) (Patch, error) {
	var patch Patch
	if err := mapstructure.Decode(raw, &patch); err != nil {
		return Patch{}, err
	}
	return patch, nil
}

// Clamp enforces 0 <= start <= end <= duration, per the invariant in
// the data model: falsy/negative start clamps to 0; falsy or
// out-of-range end clamps to duration; end below start clamps to start.
func Clamp(start, end, duration time.Duration) (time.Duration, time.Duration) {
	if start < 0 {
		start = 0
	}
	if start > duration {
		start = duration
	}
	if end <= 0 || end > duration {
		end = duration
	}
	if end < start {
		end = start
	}
	return start, end
}
