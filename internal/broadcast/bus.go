// Package broadcast provides the publish-only fan-out used to notify
// observers of booth state transitions. It is a thin wrapper over the
// ephemeral store's pub/sub capability; subscribers are untrusted
// observers and publish failures are non-fatal.
package broadcast

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/storeapi"
)

// Topics emitted by the booth core.
const (
	TopicAdvanceComplete = "advance:complete"
	TopicPlaylistCycle   = "playlist:cycle"
	TopicUserPlay        = "user:play"
	TopicWaitlistUpdate  = "waitlist:update"
)

// AdvanceComplete is the payload published on TopicAdvanceComplete.
// A nil *AdvanceComplete value publishes JSON null, for the transition
// to Idle.
type AdvanceComplete struct {
	HistoryID  string       `json:"historyID"`
	UserID     string       `json:"userID"`
	PlaylistID string       `json:"playlistID"`
	ItemID     string       `json:"itemID"`
	Media      MediaPayload `json:"media"`
	PlayedAt   int64        `json:"playedAt"`
}

// MediaPayload mirrors the `media` sub-record in AdvanceComplete's wire shape.
type MediaPayload struct {
	Media  string  `json:"media"`
	Artist string  `json:"artist"`
	Title  string  `json:"title"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

// PlaylistCycle is the payload published on TopicPlaylistCycle.
type PlaylistCycle struct {
	UserID     string `json:"userID"`
	PlaylistID string `json:"playlistID"`
}

// UserPlay is the payload published on TopicUserPlay.
type UserPlay struct {
	UserID string `json:"userID"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// WaitlistUpdate is the payload published on TopicWaitlistUpdate: the
// current waitlist snapshot, head first.
type WaitlistUpdate []string

// Bus publishes booth state transitions on named topics.
type Bus struct {
	store  storeapi.EphemeralStore
	logger zerolog.Logger
}

// New creates a Bus backed by store.
func New(store storeapi.EphemeralStore, logger zerolog.Logger) *Bus {
	return &Bus{store: store, logger: logger}
}

// Publish serializes payload and forwards it to topic. Failures are
// logged and swallowed: the durable and ephemeral state are
// authoritative and observers may refresh from them.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	if err := b.store.Publish(ctx, topic, payload); err != nil {
		b.logger.Warn().Err(err).Str("topic", topic).Msg("broadcast publish failed, continuing")
	}
}
