package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/uwave/booth/internal/domain/history"
	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/storeapi"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booth.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PlaylistCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Empty(t, p.ItemIDs)

	p.ItemIDs = []string{"item1", "item2"}
	require.NoError(t, s.SavePlaylist(ctx, p))

	got, err := s.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"item1", "item2"}, got.ItemIDs)

	list, err := s.GetUserPlaylists(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeletePlaylist(ctx, p.ID))
	_, err = s.GetPlaylist(ctx, p.ID)
	require.True(t, errors.Is(err, storeapi.ErrNotFound))
}

func TestStore_PlaylistItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []*playlist.Item{
		{MediaID: "m1", Artist: "A", Title: "One", Start: 0, End: 30 * time.Second},
		{MediaID: "m2", Artist: "B", Title: "Two", Start: 0, End: 45 * time.Second},
	}
	require.NoError(t, s.CreatePlaylistItems(ctx, items))
	require.NotEmpty(t, items[0].ID)
	require.NotEmpty(t, items[1].ID)

	got, err := s.GetPlaylistItems(ctx, []string{items[1].ID, items[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, items[1].ID, got[0].ID, "result order should follow the requested id order")

	items[0].Title = "Renamed"
	require.NoError(t, s.SavePlaylistItem(ctx, items[0]))

	one, err := s.GetPlaylistItem(ctx, items[0].ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", one.Title)

	require.NoError(t, s.DeletePlaylistItems(ctx, []string{items[0].ID}))
	_, err = s.GetPlaylistItem(ctx, items[0].ID)
	require.True(t, errors.Is(err, storeapi.ErrNotFound))
}

func TestStore_Media(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []*media.Media{
		{SourceType: "youtube", SourceID: "abc123", Duration: 3 * time.Minute, Artist: "A", Title: "Song"},
	}
	require.NoError(t, s.CreateMedia(ctx, items))
	require.NotEmpty(t, items[0].ID)

	// Re-inserting the same (sourceType, sourceID) pair is a no-op.
	dup := []*media.Media{
		{SourceType: "youtube", SourceID: "abc123", Duration: time.Minute, Artist: "X", Title: "Y"},
	}
	require.NoError(t, s.CreateMedia(ctx, dup))

	byID, err := s.GetMediaByIDs(ctx, []string{items[0].ID})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Equal(t, "Song", byID[0].Title)

	bySource, err := s.GetMediaBySource(ctx, "youtube", []string{"abc123", "missing"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
}

func TestStore_HistoryEntrySealing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &history.Entry{
		ID:             "h1",
		UserID:         "u1",
		PlaylistID:     "p1",
		PlaylistItemID: "i1",
		Media: history.MediaSnapshot{
			MediaID: "m1", Artist: "A", Title: "Song", Start: 0, End: 30 * time.Second,
		},
		PlayedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveHistoryEntry(ctx, entry))

	got, err := s.GetHistoryEntry(ctx, "h1")
	require.NoError(t, err)
	require.False(t, got.Sealed())

	got.Seal([]string{"u2"}, nil, []string{"u3"})
	require.NoError(t, s.SaveHistoryEntry(ctx, got))

	reloaded, err := s.GetHistoryEntry(ctx, "h1")
	require.NoError(t, err)
	require.True(t, reloaded.Sealed())
	require.Equal(t, []string{"u2"}, reloaded.Upvotes)
	require.Equal(t, []string{"u3"}, reloaded.Favorites)
}
