package playlistrepo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/durable/sqlite"
	"github.com/uwave/booth/internal/storeapi"
)

type fakeResolver struct {
	tracks map[string]*media.Media
}

func (f *fakeResolver) GetOne(ctx context.Context, sourceType, id string) (*media.Media, error) {
	m, ok := f.tracks[sourceType+"/"+id]
	if !ok {
		return nil, storeapi.ErrNotFound
	}
	return m, nil
}

func (f *fakeResolver) Get(ctx context.Context, sourceType string, ids []string) ([]*media.Media, error) {
	out := make([]*media.Media, 0, len(ids))
	for _, id := range ids {
		m, ok := f.tracks[sourceType+"/"+id]
		if !ok {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func newTestRepo(t *testing.T) (*Repo, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "booth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resolver := &fakeResolver{tracks: map[string]*media.Media{
		"youtube/a": {SourceType: "youtube", SourceID: "a", Duration: 30 * time.Second, Artist: "Artist A", Title: "Song A"},
		"youtube/b": {SourceType: "youtube", SourceID: "b", Duration: 45 * time.Second, Artist: "Artist B", Title: "Song B"},
	}}

	repo := New(store, map[string]storeapi.SourceResolver{"youtube": resolver}, zerolog.Nop())
	return repo, store
}

func TestRepo_AddPlaylistItemsResolvesAndInserts(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)

	result, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "youtube", SourceID: "a"},
		{SourceType: "youtube", SourceID: "b"},
	}, "")
	require.NoError(t, err)
	require.Len(t, result.Added, 2)
	require.Equal(t, 2, result.PlaylistSize)

	reloaded, err := store.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, result.Added, reloaded.ItemIDs)
}

func TestRepo_AddPlaylistItemsRejectsBadInput(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)

	_, err = repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "", SourceID: "a"},
	}, "")
	require.Error(t, err)
}

func TestRepo_AddThenRemoveRestoresOriginalOrder(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)

	first, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{{SourceType: "youtube", SourceID: "a"}}, "")
	require.NoError(t, err)

	second, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{{SourceType: "youtube", SourceID: "b"}}, "")
	require.NoError(t, err)

	require.NoError(t, repo.RemovePlaylistItems(ctx, p.ID, second.Added))

	reloaded, err := store.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, first.Added, reloaded.ItemIDs)
}

func TestRepo_MovePlaylistItemsTwiceIsIdempotent(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	_, err = repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "youtube", SourceID: "a"},
		{SourceType: "youtube", SourceID: "b"},
	}, "")
	require.NoError(t, err)

	reloaded, err := store.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	x, y := reloaded.ItemIDs[0], reloaded.ItemIDs[1]

	once, err := repo.MovePlaylistItems(ctx, p.ID, []string{x}, y)
	require.NoError(t, err)

	twice, err := repo.MovePlaylistItems(ctx, p.ID, []string{x}, y)
	require.NoError(t, err)

	require.Equal(t, once.ItemIDs, twice.ItemIDs)
}

func TestRepo_MovePlaylistItemsIgnoresForeignIDs(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	_, err = repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "youtube", SourceID: "a"},
		{SourceType: "youtube", SourceID: "b"},
	}, "")
	require.NoError(t, err)

	reloaded, err := store.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	original := append([]string(nil), reloaded.ItemIDs...)

	moved, err := repo.MovePlaylistItems(ctx, p.ID, []string{"does-not-exist"}, original[0])
	require.NoError(t, err)
	require.Equal(t, original, moved.ItemIDs, "a foreign id must not be spliced into the playlist order")
}

func TestRepo_ShufflePreservesMultiset(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	added, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "youtube", SourceID: "a"},
		{SourceType: "youtube", SourceID: "b"},
	}, "")
	require.NoError(t, err)

	shuffled, err := repo.ShufflePlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, added.Added, shuffled.ItemIDs)
}

func TestRepo_GetPlaylistItemsFilterAndPagination(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	_, err = repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{
		{SourceType: "youtube", SourceID: "a"},
		{SourceType: "youtube", SourceID: "b"},
	}, "")
	require.NoError(t, err)

	page, err := repo.GetPlaylistItems(ctx, p.ID, "song a", Pagination{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Filtered)
	require.Equal(t, 2, page.Total)

	page, err = repo.GetPlaylistItems(ctx, p.ID, "", Pagination{Offset: 0, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Next)
	require.Equal(t, 1, *page.Next)
}

func TestRepo_UpdatePlaylistItemClampsToMediaDuration(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	added, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{{SourceType: "youtube", SourceID: "a"}}, "")
	require.NoError(t, err)

	oversizedEnd := 999 * time.Second
	updated, err := repo.UpdatePlaylistItem(ctx, added.Added[0], playlist.Patch{End: &oversizedEnd})
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, updated.End)
}

func TestRepo_UpdatePlaylistItemRawDecodesAbsentFieldsAsUnchanged(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)
	added, err := repo.AddPlaylistItems(ctx, p.ID, []AddItemInput{{SourceType: "youtube", SourceID: "a"}}, "")
	require.NoError(t, err)

	updated, err := repo.UpdatePlaylistItemRaw(ctx, added.Added[0], map[string]any{"title": "Renamed"})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, "Artist A", updated.Artist)
}

func TestRepo_UpdatePlaylistRawRejectsUndecodableInput(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	p, err := store.CreatePlaylist(ctx, "user1", "Default")
	require.NoError(t, err)

	_, err = repo.UpdatePlaylistRaw(ctx, p.ID, map[string]any{"name": 42})
	require.Error(t, err)
	require.ErrorIs(t, err, storeapi.ErrBadRequest)
}
