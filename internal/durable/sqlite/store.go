// Package sqlite implements the booth's Durable Record Store on top of
// a pure-Go SQLite driver, using a schema-versioned migration style.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/uwave/booth/internal/domain/history"
	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/domain/user"
	"github.com/uwave/booth/internal/storeapi"
)

const schemaVersion = 1

// Store implements storeapi.RecordStore on top of a *sql.DB.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) a SQLite durable record store at
// path and runs pending migrations.
func NewStore(path string) (*Store, error) {
	db, err := Open(path, DefaultConnConfig())
	if err != nil {
		return nil, err
	}
	return NewStoreFromDB(db)
}

// NewStoreFromDB wraps an already-open connection, running pending
// migrations. Exposed for tests that need a connection opened against
// a temp file or :memory: with non-default ConnConfig.
func NewStoreFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "durable store: migration failed")
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		active_playlist_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		author_user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		item_ids TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_playlists_author ON playlists(author_user_id);

	CREATE TABLE IF NOT EXISTS playlist_items (
		id TEXT PRIMARY KEY,
		media_id TEXT NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(source_type, source_id)
	);

	CREATE TABLE IF NOT EXISTS history_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		playlist_id TEXT NOT NULL,
		playlist_item_id TEXT NOT NULL,
		media_id TEXT NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		played_at INTEGER NOT NULL,
		upvotes TEXT,
		downvotes TEXT,
		favorites TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, display_name, active_playlist_id FROM users WHERE id = ?`, id)
	u := &user.User{}
	if err := row.Scan(&u.ID, &u.DisplayName, &u.ActivePlaylistID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Mark(errors.Newf("user %q not found", id), storeapi.ErrNotFound)
		}
		return nil, errors.Wrap(err, "durable store: get user")
	}
	return u, nil
}

// UpsertUser creates or updates a user record. Booth never calls this
// itself (accounts are created externally); it exists for the
// identity side of the system and for operator tooling to repoint a
// user's active playlist.
func (s *Store) UpsertUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, active_playlist_id) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, active_playlist_id = excluded.active_playlist_id`,
		u.ID, u.DisplayName, u.ActivePlaylistID,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: upsert user"), storeapi.ErrPersistFailure)
	}
	return nil
}

// --- Playlists ---

func (s *Store) GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, author_user_id, name, item_ids, created_at, updated_at FROM playlists WHERE id = ?`, id)
	return scanPlaylist(row)
}

func (s *Store) CreatePlaylist(ctx context.Context, authorUserID, name string) (*playlist.Playlist, error) {
	now := time.Now().UTC()
	p := &playlist.Playlist{
		ID:           uuid.NewString(),
		AuthorUserID: authorUserID,
		Name:         name,
		ItemIDs:      []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	itemIDs, _ := json.Marshal(p.ItemIDs)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (id, author_user_id, name, item_ids, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.AuthorUserID, p.Name, string(itemIDs), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: create playlist")
	}
	return p, nil
}

func (s *Store) SavePlaylist(ctx context.Context, p *playlist.Playlist) error {
	itemIDs, err := json.Marshal(p.ItemIDs)
	if err != nil {
		return errors.Wrap(err, "durable store: marshal item ids")
	}
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE playlists SET name = ?, item_ids = ?, updated_at = ? WHERE id = ?`,
		p.Name, string(itemIDs), p.UpdatedAt.UnixMilli(), p.ID,
	)
	if err != nil {
		return errors.Wrap(err, "durable store: save playlist")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Mark(errors.Newf("playlist %q not found", p.ID), storeapi.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	return errors.Wrap(err, "durable store: delete playlist")
}

func (s *Store) GetUserPlaylists(ctx context.Context, userID string) ([]*playlist.Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_user_id, name, item_ids, created_at, updated_at FROM playlists WHERE author_user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: get user playlists")
	}
	defer rows.Close()

	var out []*playlist.Playlist
	for rows.Next() {
		p, err := scanPlaylistRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(row rowScanner) (*playlist.Playlist, error) {
	p, err := scanPlaylistRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Mark(err, storeapi.ErrNotFound)
		}
		return nil, err
	}
	return p, nil
}

func scanPlaylistRows(row rowScanner) (*playlist.Playlist, error) {
	var p playlist.Playlist
	var itemIDs string
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.AuthorUserID, &p.Name, &itemIDs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(itemIDs), &p.ItemIDs); err != nil {
		return nil, errors.Wrap(err, "durable store: unmarshal item ids")
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}

// --- Playlist items ---

func (s *Store) GetPlaylistItem(ctx context.Context, itemID string) (*playlist.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, media_id, artist, title, start_ms, end_ms, created_at, updated_at FROM playlist_items WHERE id = ?`,
		itemID,
	)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Mark(errors.Newf("playlist item %q not found", itemID), storeapi.ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

func (s *Store) GetPlaylistItems(ctx context.Context, itemIDs []string) ([]*playlist.Item, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	query, args := inClause(
		`SELECT id, media_id, artist, title, start_ms, end_ms, created_at, updated_at FROM playlist_items WHERE id IN (%s)`,
		itemIDs,
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: get playlist items")
	}
	defer rows.Close()

	byID := make(map[string]*playlist.Item, len(itemIDs))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve caller's requested order.
	out := make([]*playlist.Item, 0, len(itemIDs))
	for _, id := range itemIDs {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) CreatePlaylistItems(ctx context.Context, items []*playlist.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: begin tx"), storeapi.ErrPersistFailure)
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixMilli()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO playlist_items (id, media_id, artist, title, start_ms, end_ms, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: prepare insert"), storeapi.ErrPersistFailure)
	}
	defer stmt.Close()

	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, item.ID, item.MediaID, item.Artist, item.Title,
			item.Start.Milliseconds(), item.End.Milliseconds(), now, now); err != nil {
			return errors.Mark(errors.Wrap(err, "durable store: insert playlist item"), storeapi.ErrPersistFailure)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: commit"), storeapi.ErrPersistFailure)
	}
	return nil
}

func (s *Store) SavePlaylistItem(ctx context.Context, item *playlist.Item) error {
	item.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE playlist_items SET artist = ?, title = ?, start_ms = ?, end_ms = ?, updated_at = ? WHERE id = ?`,
		item.Artist, item.Title, item.Start.Milliseconds(), item.End.Milliseconds(), item.UpdatedAt.UnixMilli(), item.ID,
	)
	if err != nil {
		return errors.Wrap(err, "durable store: save playlist item")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Mark(errors.Newf("playlist item %q not found", item.ID), storeapi.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePlaylistItems(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query, args := inClause(`DELETE FROM playlist_items WHERE id IN (%s)`, itemIDs)
	_, err := s.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "durable store: delete playlist items")
}

func scanItem(row rowScanner) (*playlist.Item, error) {
	var item playlist.Item
	var startMs, endMs, createdAt, updatedAt int64
	if err := row.Scan(&item.ID, &item.MediaID, &item.Artist, &item.Title, &startMs, &endMs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.Start = time.Duration(startMs) * time.Millisecond
	item.End = time.Duration(endMs) * time.Millisecond
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &item, nil
}

// --- Media ---

func (s *Store) GetMediaByIDs(ctx context.Context, ids []string) ([]*media.Media, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClause(
		`SELECT id, source_type, source_id, duration_ms, artist, title, created_at FROM media WHERE id IN (%s)`,
		ids,
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: get media by ids")
	}
	defer rows.Close()
	return scanMediaRows(rows)
}

func (s *Store) GetMediaBySource(ctx context.Context, sourceType string, sourceIDs []string) ([]*media.Media, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	placeholders, args := placeholdersFor(sourceIDs)
	args = append([]any{sourceType}, args...)
	query := `SELECT id, source_type, source_id, duration_ms, artist, title, created_at FROM media WHERE source_type = ? AND source_id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: get media by source")
	}
	defer rows.Close()
	return scanMediaRows(rows)
}

func (s *Store) CreateMedia(ctx context.Context, items []*media.Media) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: begin tx"), storeapi.ErrPersistFailure)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO media (id, source_type, source_id, duration_ms, artist, title, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_type, source_id) DO NOTHING`,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: prepare media insert"), storeapi.ErrPersistFailure)
	}
	defer stmt.Close()

	for _, m := range items {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.SourceType, m.SourceID, m.Duration.Milliseconds(), m.Artist, m.Title, m.CreatedAt.UnixMilli()); err != nil {
			return errors.Mark(errors.Wrap(err, "durable store: insert media"), storeapi.ErrPersistFailure)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: commit"), storeapi.ErrPersistFailure)
	}
	return nil
}

func scanMediaRows(rows *sql.Rows) ([]*media.Media, error) {
	var out []*media.Media
	for rows.Next() {
		var m media.Media
		var durationMs, createdAt int64
		if err := rows.Scan(&m.ID, &m.SourceType, &m.SourceID, &durationMs, &m.Artist, &m.Title, &createdAt); err != nil {
			return nil, err
		}
		m.Duration = time.Duration(durationMs) * time.Millisecond
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- History ---

func (s *Store) SaveHistoryEntry(ctx context.Context, e *history.Entry) error {
	upvotes, err := marshalOptional(e.Upvotes)
	if err != nil {
		return err
	}
	downvotes, err := marshalOptional(e.Downvotes)
	if err != nil {
		return err
	}
	favorites, err := marshalOptional(e.Favorites)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history_entries (id, user_id, playlist_id, playlist_item_id, media_id, artist, title, start_ms, end_ms, played_at, upvotes, downvotes, favorites)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET upvotes = excluded.upvotes, downvotes = excluded.downvotes, favorites = excluded.favorites
	`,
		e.ID, e.UserID, e.PlaylistID, e.PlaylistItemID, e.Media.MediaID, e.Media.Artist, e.Media.Title,
		e.Media.Start.Milliseconds(), e.Media.End.Milliseconds(), e.PlayedAt.UnixMilli(),
		upvotes, downvotes, favorites,
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "durable store: save history entry"), storeapi.ErrPersistFailure)
	}
	return nil
}

func (s *Store) GetHistoryEntry(ctx context.Context, id string) (*history.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, playlist_id, playlist_item_id, media_id, artist, title, start_ms, end_ms, played_at, upvotes, downvotes, favorites
		FROM history_entries WHERE id = ?
	`, id)

	var e history.Entry
	var startMs, endMs, playedAt int64
	var upvotes, downvotes, favorites sql.NullString
	if err := row.Scan(&e.ID, &e.UserID, &e.PlaylistID, &e.PlaylistItemID, &e.Media.MediaID, &e.Media.Artist, &e.Media.Title,
		&startMs, &endMs, &playedAt, &upvotes, &downvotes, &favorites); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Mark(errors.Newf("history entry %q not found", id), storeapi.ErrNotFound)
		}
		return nil, errors.Wrap(err, "durable store: get history entry")
	}
	e.Media.Start = time.Duration(startMs) * time.Millisecond
	e.Media.End = time.Duration(endMs) * time.Millisecond
	e.PlayedAt = time.UnixMilli(playedAt).UTC()

	if upvotes.Valid {
		if err := unmarshalOptional(upvotes.String, &e.Upvotes); err != nil {
			return nil, err
		}
		if err := unmarshalOptional(downvotes.String, &e.Downvotes); err != nil {
			return nil, err
		}
		if err := unmarshalOptional(favorites.String, &e.Favorites); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func marshalOptional(v []string) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "durable store: marshal vote list")
	}
	return string(data), nil
}

func unmarshalOptional(data string, out *[]string) error {
	if data == "" {
		*out = []string{}
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(data), out), "durable store: unmarshal vote list")
}

func inClause(format string, ids []string) (string, []any) {
	placeholders, args := placeholdersFor(ids)
	return fmt.Sprintf(format, placeholders), args
}

func placeholdersFor(ids []string) (string, []any) {
	args := make([]any, len(ids))
	ph := make([]byte, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			ph = append(ph, ',')
		}
		ph = append(ph, '?')
		args[i] = id
	}
	return string(ph), args
}
