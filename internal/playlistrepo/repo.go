// Package playlistrepo implements CRUD and bulk-mutation operations
// over playlists and their ordered item lists, backed by the durable
// record store and the source resolvers.
package playlistrepo

import (
	"context"
	"math/rand"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/playlistrepo/validate"
	"github.com/uwave/booth/internal/storeapi"
)

// Repo implements the Playlist Repository operations.
type Repo struct {
	store     storeapi.RecordStore
	resolvers map[string]storeapi.SourceResolver
	validator *validate.Chain
	logger    zerolog.Logger
}

// New builds a Repo. resolvers maps a media sourceType (e.g.
// "spotify", "youtube") to the resolver responsible for it.
func New(store storeapi.RecordStore, resolvers map[string]storeapi.SourceResolver, logger zerolog.Logger) *Repo {
	return &Repo{
		store:     store,
		resolvers: resolvers,
		validator: validate.NewChain(),
		logger:    logger,
	}
}

func (r *Repo) GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	return r.store.GetPlaylist(ctx, id)
}

func (r *Repo) GetUserPlaylist(ctx context.Context, userID, id string) (*playlist.Playlist, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AuthorUserID != userID {
		return nil, errors.Mark(errors.Newf("playlist %q is not owned by user %q", id, userID), storeapi.ErrNotFound)
	}
	return p, nil
}

func (r *Repo) GetUserPlaylists(ctx context.Context, userID string) ([]*playlist.Playlist, error) {
	return r.store.GetUserPlaylists(ctx, userID)
}

func (r *Repo) CreatePlaylist(ctx context.Context, userID, name string) (*playlist.Playlist, error) {
	return r.store.CreatePlaylist(ctx, userID, name)
}

func (r *Repo) UpdatePlaylist(ctx context.Context, id string, patch playlist.PlaylistPatch) (*playlist.Playlist, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if err := r.store.SavePlaylist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePlaylistRaw decodes a raw field map (the shape a config or
// request-body layer hands off) into a PlaylistPatch before applying
// it, so callers outside this package never need to know about
// mapstructure tags.
func (r *Repo) UpdatePlaylistRaw(ctx context.Context, id string, raw map[string]any) (*playlist.Playlist, error) {
	patch, err := playlist.DecodePlaylistPatch(raw)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode playlist patch"), storeapi.ErrBadRequest)
	}
	return r.UpdatePlaylist(ctx, id, patch)
}

func (r *Repo) DeletePlaylist(ctx context.Context, id string) error {
	return r.store.DeletePlaylist(ctx, id)
}

// ShufflePlaylist randomizes the order of a playlist's item ids,
// preserving the multiset of media it references.
func (r *Repo) ShufflePlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(p.ItemIDs), func(i, j int) {
		p.ItemIDs[i], p.ItemIDs[j] = p.ItemIDs[j], p.ItemIDs[i]
	})
	if err := r.store.SavePlaylist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddItemInput is a caller-supplied item destined for AddPlaylistItems.
type AddItemInput struct {
	SourceType string
	SourceID   any
	Artist     string
	Title      string
}

// AddResult reports the outcome of AddPlaylistItems.
type AddResult struct {
	Added        []string
	AfterID      string
	PlaylistSize int
}

// AddPlaylistItems validates, resolves, persists, and inserts a batch
// of items into a playlist, contiguous after the given id (or at the
// head if after is empty or not found).
func (r *Repo) AddPlaylistItems(ctx context.Context, id string, items []AddItemInput, after string) (*AddResult, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}

	inputs := make([]validate.ItemInput, len(items))
	for i, it := range items {
		inputs[i] = validate.ItemInput{SourceType: it.SourceType, SourceID: it.SourceID}
	}
	results, err := r.validator.CheckAll(inputs)
	if err != nil {
		return nil, err
	}

	bySourceType := make(map[string][]int)
	sourceIDOf := make([]string, len(items))
	for i, it := range items {
		sourceIDOf[i] = results[i].SourceID
		bySourceType[it.SourceType] = append(bySourceType[it.SourceType], i)
	}

	mediaByKey := make(map[media.Key]*media.Media)
	for sourceType, indices := range bySourceType {
		sourceIDs := make([]string, len(indices))
		for j, i := range indices {
			sourceIDs[j] = sourceIDOf[i]
		}

		known, err := r.store.GetMediaBySource(ctx, sourceType, sourceIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range known {
			mediaByKey[media.Key{SourceType: m.SourceType, SourceID: m.SourceID}] = m
		}

		var missing []string
		for _, sourceID := range sourceIDs {
			if _, ok := mediaByKey[media.Key{SourceType: sourceType, SourceID: sourceID}]; !ok {
				missing = append(missing, sourceID)
			}
		}
		if len(missing) == 0 {
			continue
		}

		resolver, ok := r.resolvers[sourceType]
		if !ok {
			return nil, errors.Mark(errors.Newf("playlistrepo: no resolver registered for source type %q", sourceType), storeapi.ErrBadRequest)
		}
		resolved, err := resolver.Get(ctx, sourceType, missing)
		if err != nil {
			return nil, err
		}
		if err := r.store.CreateMedia(ctx, resolved); err != nil {
			return nil, errors.Mark(err, storeapi.ErrPersistFailure)
		}
		for _, m := range resolved {
			mediaByKey[media.Key{SourceType: m.SourceType, SourceID: m.SourceID}] = m
		}
	}

	newItems := make([]*playlist.Item, 0, len(items))
	for i, it := range items {
		m, ok := mediaByKey[media.Key{SourceType: it.SourceType, SourceID: sourceIDOf[i]}]
		if !ok {
			return nil, errors.Mark(errors.Newf("playlistrepo: media %s/%s could not be resolved", it.SourceType, sourceIDOf[i]), storeapi.ErrBadRequest)
		}
		start, end := playlist.Clamp(0, m.Duration, m.Duration)
		artist, title := it.Artist, it.Title
		if artist == "" {
			artist = m.Artist
		}
		if title == "" {
			title = m.Title
		}
		newItems = append(newItems, &playlist.Item{
			MediaID: m.ID,
			Artist:  artist,
			Title:   title,
			Start:   start,
			End:     end,
		})
	}

	if err := r.store.CreatePlaylistItems(ctx, newItems); err != nil {
		r.logger.Error().Err(err).Str("playlistID", id).Msg("bulk playlist item persist failed")
		return nil, errors.Mark(errors.Wrap(err, "could not save playlist items"), storeapi.ErrPersistFailure)
	}

	newIDs := make([]string, len(newItems))
	for i, item := range newItems {
		newIDs[i] = item.ID
	}

	p.ItemIDs = insertAfter(p.ItemIDs, newIDs, after)
	if err := r.store.SavePlaylist(ctx, p); err != nil {
		return nil, err
	}

	return &AddResult{Added: newIDs, AfterID: after, PlaylistSize: p.Size()}, nil
}

// insertAfter inserts newIDs contiguously following afterID, or at the
// head when afterID is empty or not present in ids.
func insertAfter(ids, newIDs []string, afterID string) []string {
	idx := -1
	if afterID != "" {
		for i, id := range ids {
			if id == afterID {
				idx = i
				break
			}
		}
	}

	out := make([]string, 0, len(ids)+len(newIDs))
	out = append(out, ids[:idx+1]...)
	out = append(out, newIDs...)
	out = append(out, ids[idx+1:]...)
	return out
}

// MovePlaylistItems removes itemIDs from the playlist's order, then
// reinserts them (in the order given) contiguous after afterID.
func (r *Repo) MovePlaylistItems(ctx context.Context, id string, itemIDs []string, afterID string) (*playlist.Playlist, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(p.ItemIDs))
	for _, id := range p.ItemIDs {
		present[id] = true
	}

	var moving []string
	for _, id := range itemIDs {
		if present[id] {
			moving = append(moving, id)
		}
	}
	if len(moving) == 0 {
		return p, nil
	}

	movingSet := make(map[string]bool, len(moving))
	for _, id := range moving {
		movingSet[id] = true
	}

	remaining := make([]string, 0, len(p.ItemIDs))
	for _, id := range p.ItemIDs {
		if !movingSet[id] {
			remaining = append(remaining, id)
		}
	}

	p.ItemIDs = insertAfter(remaining, moving, afterID)
	if err := r.store.SavePlaylist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePlaylistItems deletes both the playlist's references and the
// underlying PlaylistItem records, touching only ids actually present
// in the playlist.
func (r *Repo) RemovePlaylistItems(ctx context.Context, id string, itemIDs []string) error {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(p.ItemIDs))
	for _, id := range p.ItemIDs {
		present[id] = true
	}

	var toRemove []string
	for _, id := range itemIDs {
		if present[id] {
			toRemove = append(toRemove, id)
		}
	}
	if len(toRemove) == 0 {
		return nil
	}

	removing := make(map[string]bool, len(toRemove))
	for _, id := range toRemove {
		removing[id] = true
	}
	remaining := make([]string, 0, len(p.ItemIDs))
	for _, id := range p.ItemIDs {
		if !removing[id] {
			remaining = append(remaining, id)
		}
	}
	p.ItemIDs = remaining

	if err := r.store.SavePlaylist(ctx, p); err != nil {
		return err
	}
	return r.store.DeletePlaylistItems(ctx, toRemove)
}

// Pagination describes an offset-limited window over a filtered item list.
type Pagination struct {
	Offset int
	Limit  int
}

// Page is a window over a playlist's (optionally filtered) items.
type Page struct {
	Items    []*playlist.Item
	PageSize int
	Filtered int
	Total    int
	Next     *int
	Previous *int
}

// GetPlaylistItems returns a paginated, optionally filtered view of a
// playlist's items in playlist order. filter, when non-empty, is
// matched as a case-insensitive literal substring against artist or
// title.
func (r *Repo) GetPlaylistItems(ctx context.Context, id string, filter string, page Pagination) (*Page, error) {
	p, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := r.store.GetPlaylistItems(ctx, p.ItemIDs)
	if err != nil {
		return nil, err
	}

	total := len(items)
	if filter != "" {
		needle := strings.ToLower(filter)
		matched := items[:0:0]
		for _, item := range items {
			if strings.Contains(strings.ToLower(item.Artist), needle) || strings.Contains(strings.ToLower(item.Title), needle) {
				matched = append(matched, item)
			}
		}
		items = matched
	}
	filtered := len(items)

	limit := page.Limit
	if limit <= 0 {
		limit = filtered
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > filtered {
		offset = filtered
	}
	end := offset + limit
	if end > filtered {
		end = filtered
	}
	windowed := items[offset:end]

	result := &Page{Items: windowed, PageSize: len(windowed), Filtered: filtered, Total: total}
	if end < filtered {
		next := end
		result.Next = &next
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		result.Previous = &prev
	}
	return result, nil
}

// ItemWithMedia is a PlaylistItem alongside its referenced Media.
type ItemWithMedia struct {
	Item  *playlist.Item
	Media *media.Media
}

func (r *Repo) GetPlaylistItem(ctx context.Context, itemID string) (*ItemWithMedia, error) {
	item, err := r.store.GetPlaylistItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	mediaItems, err := r.store.GetMediaByIDs(ctx, []string{item.MediaID})
	if err != nil {
		return nil, err
	}
	if len(mediaItems) == 0 {
		return nil, errors.Mark(errors.Newf("playlistrepo: media %q referenced by item %q not found", item.MediaID, itemID), storeapi.ErrNotFound)
	}
	return &ItemWithMedia{Item: item, Media: mediaItems[0]}, nil
}

// UpdatePlaylistItem applies a partial patch to a PlaylistItem's
// mutable fields, re-clamping start/end against the referenced
// media's duration.
func (r *Repo) UpdatePlaylistItem(ctx context.Context, itemID string, patch playlist.Patch) (*playlist.Item, error) {
	withMedia, err := r.GetPlaylistItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	item := withMedia.Item

	if patch.Artist != nil {
		item.Artist = *patch.Artist
	}
	if patch.Title != nil {
		item.Title = *patch.Title
	}
	start, end := item.Start, item.End
	if patch.Start != nil {
		start = *patch.Start
	}
	if patch.End != nil {
		end = *patch.End
	}
	item.Start, item.End = playlist.Clamp(start, end, withMedia.Media.Duration)

	if err := r.store.SavePlaylistItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdatePlaylistItemRaw is the raw-map counterpart to
// UpdatePlaylistItem, for callers holding a decoded request body
// rather than a typed Patch.
func (r *Repo) UpdatePlaylistItemRaw(ctx context.Context, itemID string, raw map[string]any) (*playlist.Item, error) {
	patch, err := playlist.DecodePatch(raw)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode item patch"), storeapi.ErrBadRequest)
	}
	return r.UpdatePlaylistItem(ctx, itemID, patch)
}
