package storeapi

import (
	"context"

	"github.com/uwave/booth/internal/domain/history"
	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/domain/user"
)

// RecordStore abstracts the durable record of plays, playlists,
// playlist items, media, and users. It holds no coordination logic:
// every method is a plain structured read or write.
type RecordStore interface {
	// Users

	GetUser(ctx context.Context, id string) (*user.User, error)
	// UpsertUser creates or updates a user record. Accounts originate
	// outside the booth; this exists for the identity side of the
	// system and for operator tooling.
	UpsertUser(ctx context.Context, u *user.User) error

	// Playlists

	GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error)
	CreatePlaylist(ctx context.Context, authorUserID, name string) (*playlist.Playlist, error)
	SavePlaylist(ctx context.Context, p *playlist.Playlist) error
	DeletePlaylist(ctx context.Context, id string) error
	GetUserPlaylists(ctx context.Context, userID string) ([]*playlist.Playlist, error)

	// Playlist items

	GetPlaylistItem(ctx context.Context, itemID string) (*playlist.Item, error)
	GetPlaylistItems(ctx context.Context, itemIDs []string) ([]*playlist.Item, error)
	CreatePlaylistItems(ctx context.Context, items []*playlist.Item) error
	SavePlaylistItem(ctx context.Context, item *playlist.Item) error
	DeletePlaylistItems(ctx context.Context, itemIDs []string) error

	// Media

	GetMediaByIDs(ctx context.Context, ids []string) ([]*media.Media, error)
	// GetMediaBySource looks up existing Media by (sourceType, sourceID)
	// pairs sharing one sourceType, returning only the ones found.
	GetMediaBySource(ctx context.Context, sourceType string, sourceIDs []string) ([]*media.Media, error)
	CreateMedia(ctx context.Context, items []*media.Media) error

	// History

	SaveHistoryEntry(ctx context.Context, e *history.Entry) error
	GetHistoryEntry(ctx context.Context, id string) (*history.Entry, error)
}
