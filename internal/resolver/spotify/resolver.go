// Package spotify implements storeapi.SourceResolver against the
// Spotify Web API for media of source type "spotify".
package spotify

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/uwave/booth/internal/domain/media"
	"github.com/uwave/booth/internal/storeapi"
)

// Config holds the credentials used to mint an auto-refreshing
// client-credentials-flow Spotify client. Unlike a user's library, the
// booth only ever reads public track metadata, so no user token is
// needed.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// Resolver resolves "spotify" source IDs to Media records, and
// persists every newly-seen track so later lookups hit the durable
// store instead of the network.
type Resolver struct {
	client     *spotify.Client
	store      storeapi.RecordStore
	market     string
	maxRetries int
	retryDelay time.Duration
}

// New creates a Resolver. It eagerly exchanges client credentials for
// an access token so misconfiguration surfaces at startup. store is
// where newly-resolved tracks are persisted.
func New(ctx context.Context, cfg Config, store storeapi.RecordStore) (*Resolver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify: client id and secret are required")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	tokenSource := cc.TokenSource(ctx)
	if _, err := tokenSource.Token(); err != nil {
		return nil, errors.Wrap(err, "spotify: client credentials exchange failed")
	}
	httpClient := oauth2.NewClient(ctx, tokenSource)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Resolver{client: client, store: store, market: market, maxRetries: 3, retryDelay: time.Second}, nil
}

// GetOne resolves a single Spotify track ID.
func (r *Resolver) GetOne(ctx context.Context, sourceType, id string) (*media.Media, error) {
	if sourceType != "spotify" {
		return nil, errors.Mark(errors.Newf("spotify resolver: unsupported source type %q", sourceType), storeapi.ErrBadRequest)
	}

	all, err := r.Get(ctx, sourceType, []string{id})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.Mark(errors.Newf("spotify: track %q not found", id), storeapi.ErrNotFound)
	}
	return all[0], nil
}

// Get resolves a batch of Spotify track IDs. The Spotify tracks
// endpoint accepts at most 50 IDs per call, so requests are chunked.
func (r *Resolver) Get(ctx context.Context, sourceType string, ids []string) ([]*media.Media, error) {
	if sourceType != "spotify" {
		return nil, errors.Mark(errors.Newf("spotify resolver: unsupported source type %q", sourceType), storeapi.ErrBadRequest)
	}

	out := make([]*media.Media, 0, len(ids))
	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		spotifyIDs := make([]spotify.ID, len(batch))
		for i, id := range batch {
			spotifyIDs[i] = spotify.ID(id)
		}

		var tracks []*spotify.FullTrack
		err := r.retry(func() error {
			t, err := r.client.GetTracks(ctx, spotifyIDs, spotify.Market(r.market))
			if err != nil {
				return err
			}
			tracks = t
			return nil
		})
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "spotify: get tracks failed"), storeapi.ErrStoreUnavailable)
		}

		for _, t := range tracks {
			if t == nil {
				continue
			}
			out = append(out, convertTrack(t))
		}
	}

	if len(out) > 0 {
		if err := r.store.CreateMedia(ctx, out); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "spotify: persist resolved tracks"), storeapi.ErrPersistFailure)
		}
	}
	return out, nil
}

func convertTrack(t *spotify.FullTrack) *media.Media {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return &media.Media{
		ID:         uuid.NewString(),
		SourceType: "spotify",
		SourceID:   string(t.ID),
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		Artist:     artist,
		Title:      t.Name,
		CreatedAt:  time.Now().UTC(),
	}
}

func (r *Resolver) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i < r.maxRetries-1 {
			time.Sleep(r.retryDelay * time.Duration(i+1))
		}
	}
	return lastErr
}
