package booth

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/uwave/booth/internal/domain/history"
	"github.com/uwave/booth/internal/storeapi"
)

// Snapshot describes the currently playing track, for callers that
// need a read-only view without touching history directly.
type Snapshot struct {
	HistoryID  string
	UserID     string
	PlaylistID string
	ItemID     string
	Media      history.MediaSnapshot
	PlayedAt   time.Time
}

// CurrentPlay returns the booth's current play, or (nil, false) if the
// booth is idle.
func (s *Scheduler) CurrentPlay(ctx context.Context) (*Snapshot, bool, error) {
	entry, err := s.currentHistoryEntry(ctx)
	if err != nil || entry == nil {
		return nil, false, err
	}
	return &Snapshot{
		HistoryID:  entry.ID,
		UserID:     entry.UserID,
		PlaylistID: entry.PlaylistID,
		ItemID:     entry.PlaylistItemID,
		Media:      entry.Media,
		PlayedAt:   entry.PlayedAt,
	}, true, nil
}

// Upvote records userID's upvote on the current play, clearing any
// prior downvote from the same user.
func (s *Scheduler) Upvote(ctx context.Context, userID string) error {
	return s.ephemeral.Multi(ctx, func(p storeapi.Pipeliner) error {
		p.SRem(keyDownvotes, userID)
		p.SAdd(keyUpvotes, userID)
		return nil
	})
}

// Downvote records userID's downvote on the current play, clearing any
// prior upvote from the same user.
func (s *Scheduler) Downvote(ctx context.Context, userID string) error {
	return s.ephemeral.Multi(ctx, func(p storeapi.Pipeliner) error {
		p.SRem(keyUpvotes, userID)
		p.SAdd(keyDownvotes, userID)
		return nil
	})
}

// Favorite records userID's favorite on the current play. Favoriting
// is independent of the up/down tally.
func (s *Scheduler) Favorite(ctx context.Context, userID string) error {
	return s.ephemeral.SAdd(ctx, keyFavorites, userID)
}

// JoinWaitlist appends userID to the tail of the waitlist. It rejects
// the current DJ (who is never also a waitlist entry) and a user
// already present in the waitlist.
func (s *Scheduler) JoinWaitlist(ctx context.Context, userID string) error {
	currentDJ, found, err := s.ephemeral.Get(ctx, keyCurrentDJ)
	if err != nil {
		return err
	}
	if found && currentDJ == userID {
		return errors.Mark(errors.New("booth: the current DJ cannot join the waitlist"), storeapi.ErrBadRequest)
	}

	members, err := s.ephemeral.LRange(ctx, keyWaitlist, 0, -1)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == userID {
			return errors.Mark(errors.New("booth: user is already in the waitlist"), storeapi.ErrBadRequest)
		}
	}

	return s.ephemeral.RPush(ctx, keyWaitlist, userID)
}

// LeaveWaitlist removes userID from the waitlist, wherever it sits.
// Leaving while absent is not an error.
func (s *Scheduler) LeaveWaitlist(ctx context.Context, userID string) error {
	return s.ephemeral.LRem(ctx, keyWaitlist, 0, userID)
}
