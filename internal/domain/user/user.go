// Package user provides the User domain entity.
package user

// User is a room participant. Users are created externally (out of
// scope for the booth core) and referenced here only by id.
type User struct {
	ID               string
	DisplayName      string
	ActivePlaylistID string // empty if the user has no active playlist
}

// HasActivePlaylist reports whether u has designated an active playlist.
func (u *User) HasActivePlaylist() bool {
	return u != nil && u.ActivePlaylistID != ""
}
