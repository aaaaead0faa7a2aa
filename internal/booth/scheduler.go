// Package booth implements the booth advancement state machine: the
// distributed, timer-driven protocol that selects the next DJ, plays
// their top track, rotates playlists, seals vote tallies, and
// broadcasts transitions.
package booth

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/broadcast"
	"github.com/uwave/booth/internal/domain/history"
	"github.com/uwave/booth/internal/storeapi"
)

const maxEmptyPlaylistRetries = 10

// defaultAdvanceLockTTL is used when New is given a zero lockTTL.
const defaultAdvanceLockTTL = 2 * time.Second

// Scheduler owns the advance protocol, restart recovery, and broadcast
// emission. The only in-process state it carries is a pending timer
// handle; everything else lives in the ephemeral and durable stores,
// so restarting the process is always safe.
type Scheduler struct {
	ephemeral storeapi.EphemeralStore
	durable   storeapi.RecordStore
	bus       *broadcast.Bus
	logger    zerolog.Logger
	lockTTL   time.Duration

	mu          sync.Mutex
	timerCancel func()
}

// New builds a Scheduler. lockTTL configures the booth:advancing
// lease's TTL; a zero value falls back to defaultAdvanceLockTTL.
func New(ephemeral storeapi.EphemeralStore, durable storeapi.RecordStore, bus *broadcast.Bus, logger zerolog.Logger, lockTTL time.Duration) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = defaultAdvanceLockTTL
	}
	return &Scheduler{ephemeral: ephemeral, durable: durable, bus: bus, logger: logger, lockTTL: lockTTL}
}

// AdvanceOptions parameterizes a single advance call.
type AdvanceOptions struct {
	// Remove, when true, replaces the current DJ (skip/replace): the
	// waitlist head is popped and plays next, the outgoing DJ is not
	// requeued, and an empty waitlist sends the booth idle instead of
	// rotating the current DJ back in.
	Remove bool
	// NoPublish suppresses the broadcast of this advance's events.
	// Mirrors the "publish !== false" default-true contract.
	NoPublish bool
}

// Advance runs the advance protocol: seal the previous play, compute
// and commit the next, rotate the waitlist and playlist, and
// broadcast the transition. Concurrent callers across instances are
// serialized by the booth:advancing lock; a contended caller receives
// a storeapi.ErrAdvanceInProgress-marked error and does not retry.
func (s *Scheduler) Advance(ctx context.Context, opts AdvanceOptions) error {
	lease, err := s.ephemeral.Lock().Acquire(ctx, lockName, s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("advance: lease release failed, relying on TTL expiry")
		}
	}()

	originalRemove := opts.Remove
	remove := opts.Remove
	allowReuseOnEmptyRemove := false
	for attempt := 0; attempt < maxEmptyPlaylistRetries; attempt++ {
		if attempt > 0 {
			if err := lease.Extend(ctx, s.lockTTL); err != nil {
				return err
			}
		}

		err := s.runAdvance(ctx, lease, remove, originalRemove, allowReuseOnEmptyRemove, opts.NoPublish)
		if err == nil {
			return nil
		}
		if errors.Is(err, storeapi.ErrEmptyPlaylist) {
			// Evict the disqualified candidate and retry under the
			// same lease. After the first eviction, an exhausted
			// waitlist falls back to replaying the current DJ rather
			// than going idle on a retry that made no real progress.
			remove = true
			allowReuseOnEmptyRemove = true
			continue
		}
		return err
	}
	return errors.Newf("booth: exceeded %d empty-playlist retries during advance", maxEmptyPlaylistRetries)
}

// nextCandidate is the resolved occupant of the booth for the next
// play, before their playlist has been consulted.
type nextCandidate struct {
	userID       string
	fromWaitlist bool
}

func (s *Scheduler) runAdvance(ctx context.Context, lease storeapi.Lease, remove, originalRemove, allowReuseOnEmptyRemove, noPublish bool) error {
	previous, err := s.currentHistoryEntry(ctx)
	if err != nil {
		return err
	}

	currentDJ, _, err := s.ephemeral.Get(ctx, keyCurrentDJ)
	if err != nil {
		return err
	}

	candidate, err := s.determineNextCandidate(ctx, remove, allowReuseOnEmptyRemove, currentDJ)
	if err != nil {
		return err
	}

	next, err := s.computeNextEntry(ctx, candidate)
	if err != nil {
		return err // may be storeapi.ErrEmptyPlaylist, handled by the retry loop
	}

	if previous != nil {
		if err := s.sealPrevious(ctx, previous); err != nil {
			return err
		}
	}

	if next != nil {
		if err := s.durable.SaveHistoryEntry(ctx, next.entry); err != nil {
			return errors.Mark(err, storeapi.ErrPersistFailure)
		}
	} else {
		s.stopTimer()
	}

	if err := s.rotateWaitlist(ctx, candidate, previous, originalRemove); err != nil {
		return err
	}

	if next != nil {
		if err := s.commitNext(ctx, lease, next); err != nil {
			return err
		}
	} else {
		if err := s.clearBoothState(ctx); err != nil {
			return err
		}
	}

	if !noPublish {
		s.publishAdvance(ctx, next)
	}

	return nil
}

func (s *Scheduler) currentHistoryEntry(ctx context.Context) (*history.Entry, error) {
	id, found, err := s.ephemeral.Get(ctx, keyHistoryID)
	if err != nil || !found {
		return nil, err
	}
	return s.durable.GetHistoryEntry(ctx, id)
}

// determineNextCandidate resolves who should DJ next, without yet
// consulting their playlist. See DESIGN.md for the reasoning behind
// the remove/reuse interplay, which reconciles the protocol's skip
// and operator-replace paths.
func (s *Scheduler) determineNextCandidate(ctx context.Context, remove, allowReuseOnEmptyRemove bool, currentDJ string) (nextCandidate, error) {
	if remove {
		if !allowReuseOnEmptyRemove {
			// Operator-invoked skip/replace: the waitlist head itself
			// becomes the next DJ in the same pop, nobody is reused.
			head, found, err := s.ephemeral.LPop(ctx, keyWaitlist)
			if err != nil {
				return nextCandidate{}, err
			}
			if !found {
				return nextCandidate{}, nil
			}
			return nextCandidate{userID: head}, nil
		}
		// Internal empty-playlist retry: discard the disqualified head,
		// then fall through to the normal rules below so a remaining
		// waitlist entry is still peeked (and popped/requeued on success)
		// rather than treated as already consumed.
		if _, _, err := s.ephemeral.LPop(ctx, keyWaitlist); err != nil {
			return nextCandidate{}, err
		}
	}

	length, err := s.ephemeral.LLen(ctx, keyWaitlist)
	if err != nil {
		return nextCandidate{}, err
	}
	if length == 0 {
		if currentDJ != "" {
			return nextCandidate{userID: currentDJ}, nil
		}
		return nextCandidate{}, nil
	}

	head, found, err := s.ephemeral.LIndex(ctx, keyWaitlist, 0)
	if err != nil {
		return nextCandidate{}, err
	}
	if !found {
		return nextCandidate{}, nil
	}
	return nextCandidate{userID: head, fromWaitlist: true}, nil
}

type resolvedNext struct {
	entry  *history.Entry
	userID string
	itemID string
}

func (s *Scheduler) computeNextEntry(ctx context.Context, candidate nextCandidate) (*resolvedNext, error) {
	if candidate.userID == "" {
		return nil, nil
	}

	u, err := s.durable.GetUser(ctx, candidate.userID)
	if err != nil {
		if errors.Is(err, storeapi.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !u.HasActivePlaylist() {
		return nil, nil
	}

	p, err := s.durable.GetPlaylist(ctx, u.ActivePlaylistID)
	if err != nil {
		if errors.Is(err, storeapi.ErrNotFound) {
			// Dangling active playlist reference: treated as no
			// active playlist, per the open-question resolution.
			return nil, nil
		}
		return nil, err
	}
	if p.Size() == 0 {
		return nil, errors.Mark(errors.Newf("booth: user %q's active playlist is empty", candidate.userID), storeapi.ErrEmptyPlaylist)
	}

	itemID := p.ItemIDs[0]
	item, err := s.durable.GetPlaylistItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	entry := &history.Entry{
		ID:             uuid.NewString(),
		UserID:         candidate.userID,
		PlaylistID:     p.ID,
		PlaylistItemID: itemID,
		Media: history.MediaSnapshot{
			MediaID: item.MediaID,
			Artist:  item.Artist,
			Title:   item.Title,
			Start:   item.Start,
			End:     item.End,
		},
		PlayedAt: time.Now().UTC(),
	}

	return &resolvedNext{entry: entry, userID: candidate.userID, itemID: itemID}, nil
}

func (s *Scheduler) sealPrevious(ctx context.Context, previous *history.Entry) error {
	upvotes, err := s.ephemeral.SMembers(ctx, keyUpvotes)
	if err != nil {
		return err
	}
	downvotes, err := s.ephemeral.SMembers(ctx, keyDownvotes)
	if err != nil {
		return err
	}
	favorites, err := s.ephemeral.SMembers(ctx, keyFavorites)
	if err != nil {
		return err
	}
	previous.Seal(orEmpty(upvotes), orEmpty(downvotes), orEmpty(favorites))
	return s.durable.SaveHistoryEntry(ctx, previous)
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// rotateWaitlist consumes the peeked waitlist head and requeues the
// outgoing DJ, but only when a real hand-off occurred: a lone DJ
// reusing an empty waitlist never touches it, a candidate already
// popped by determineNextCandidate (operator skip/replace, or the
// internal empty-playlist reuse fallback) is never popped twice, and
// an operator-forced remove never requeues the user being replaced.
func (s *Scheduler) rotateWaitlist(ctx context.Context, candidate nextCandidate, previous *history.Entry, originalRemove bool) error {
	if !candidate.fromWaitlist {
		return nil
	}
	if _, _, err := s.ephemeral.LPop(ctx, keyWaitlist); err != nil {
		return err
	}
	if previous != nil && !originalRemove {
		if err := s.ephemeral.RPush(ctx, keyWaitlist, previous.UserID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) commitNext(ctx context.Context, lease storeapi.Lease, next *resolvedNext) error {
	err := s.ephemeral.Multi(ctx, func(p storeapi.Pipeliner) error {
		p.Del(keyUpvotes, keyDownvotes, keyFavorites)
		p.Set(keyHistoryID, next.entry.ID)
		p.Set(keyCurrentDJ, next.userID)
		return nil
	})
	if err != nil {
		return err
	}

	p, err := s.durable.GetPlaylist(ctx, next.entry.PlaylistID)
	if err != nil {
		return err
	}
	p.ItemIDs = append(p.ItemIDs[1:], p.ItemIDs[0])
	if err := s.durable.SavePlaylist(ctx, p); err != nil {
		return err
	}

	duration := next.entry.Media.Duration()
	s.armTimer(time.Now().Add(duration))
	return nil
}

func (s *Scheduler) clearBoothState(ctx context.Context) error {
	return s.ephemeral.Multi(ctx, func(p storeapi.Pipeliner) error {
		p.Del(keyHistoryID, keyCurrentDJ, keyUpvotes, keyDownvotes, keyFavorites)
		return nil
	})
}

func (s *Scheduler) publishAdvance(ctx context.Context, next *resolvedNext) {
	if next == nil {
		s.bus.Publish(ctx, broadcast.TopicAdvanceComplete, nil)
	} else {
		s.bus.Publish(ctx, broadcast.TopicAdvanceComplete, broadcast.AdvanceComplete{
			HistoryID:  next.entry.ID,
			UserID:     next.userID,
			PlaylistID: next.entry.PlaylistID,
			ItemID:     next.itemID,
			Media: broadcast.MediaPayload{
				Media:  next.entry.Media.MediaID,
				Artist: next.entry.Media.Artist,
				Title:  next.entry.Media.Title,
				Start:  next.entry.Media.Start.Seconds(),
				End:    next.entry.Media.End.Seconds(),
			},
			PlayedAt: next.entry.PlayedAt.UnixMilli(),
		})
		s.bus.Publish(ctx, broadcast.TopicPlaylistCycle, broadcast.PlaylistCycle{
			UserID:     next.userID,
			PlaylistID: next.entry.PlaylistID,
		})
		s.bus.Publish(ctx, broadcast.TopicUserPlay, broadcast.UserPlay{
			UserID: next.userID,
			Artist: next.entry.Media.Artist,
			Title:  next.entry.Media.Title,
		})
	}

	waitlist, err := s.ephemeral.LRange(ctx, keyWaitlist, 0, -1)
	if err != nil {
		s.logger.Warn().Err(err).Msg("advance: could not read waitlist for broadcast")
		waitlist = nil
	}
	s.bus.Publish(ctx, broadcast.TopicWaitlistUpdate, broadcast.WaitlistUpdate(orEmpty(waitlist)))
}

// OnStart recovers scheduler state after a process restart: if a play
// is already recorded as current, either arm a timer for its
// remainder or, if it should already have ended, advance immediately.
func (s *Scheduler) OnStart(ctx context.Context) error {
	id, found, err := s.ephemeral.Get(ctx, keyHistoryID)
	if err != nil || !found {
		return err
	}

	entry, err := s.durable.GetHistoryEntry(ctx, id)
	if err != nil {
		return err
	}

	endTime := entry.PlayedAt.Add(entry.Media.Duration())
	now := time.Now()
	if endTime.After(now) {
		s.armTimer(endTime)
		return nil
	}
	return s.Advance(ctx, AdvanceOptions{})
}

// OnStop clears any pending timer without touching BoothState: another
// instance, or this one on restart, resumes from the durable/ephemeral
// record.
func (s *Scheduler) OnStop() {
	s.stopTimer()
}

func (s *Scheduler) armTimer(endTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerCancel != nil {
		s.timerCancel()
	}
	s.timerCancel = startWallClockTimer(endTime, func() {
		ctx := context.Background()
		if err := s.Advance(ctx, AdvanceOptions{}); err != nil && !errors.Is(err, storeapi.ErrAdvanceInProgress) {
			s.logger.Error().Err(err).Msg("advance: timer-triggered advance failed")
		}
	})
}

func (s *Scheduler) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerCancel != nil {
		s.timerCancel()
		s.timerCancel = nil
	}
}
