package booth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uwave/booth/internal/broadcast"
	"github.com/uwave/booth/internal/domain/playlist"
	"github.com/uwave/booth/internal/domain/user"
	"github.com/uwave/booth/internal/durable/sqlite"
	"github.com/uwave/booth/internal/ephemeral/redis"
)

type fixture struct {
	sched   *Scheduler
	ephem   *redis.Store
	durable *sqlite.Store
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ephem := redis.WithClient(client, zerolog.Nop())

	durable, err := sqlite.NewStore(filepath.Join(t.TempDir(), "booth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = durable.Close() })

	bus := broadcast.New(ephem, zerolog.Nop())
	return &fixture{sched: New(ephem, durable, bus, zerolog.Nop(), 0), ephem: ephem, durable: durable, mr: mr}
}

func seedUserWithPlaylist(t *testing.T, f *fixture, userID string, tracks []playlist.Item) string {
	t.Helper()
	ctx := context.Background()

	items := make([]*playlist.Item, len(tracks))
	for i := range tracks {
		track := tracks[i]
		items[i] = &track
	}
	require.NoError(t, f.durable.CreatePlaylistItems(ctx, items))

	p, err := f.durable.CreatePlaylist(ctx, userID, "Default")
	require.NoError(t, err)
	p.ItemIDs = itemIDsOf(items)
	require.NoError(t, f.durable.SavePlaylist(ctx, p))

	require.NoError(t, f.durable.UpsertUser(ctx, &user.User{ID: userID, DisplayName: userID, ActivePlaylistID: p.ID}))
	return p.ID
}

func itemIDsOf(items []*playlist.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestScheduler_SingleDJLoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
		{Artist: "A2", Title: "Song B", Start: 0, End: 5 * time.Second},
	})
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))

	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))
	snap, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", snap.UserID)
	require.Equal(t, "Song A", snap.Media.Title)

	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))
	snap, ok, err = f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", snap.UserID)
	require.Equal(t, "Song B", snap.Media.Title)

	length, err := f.ephem.LLen(ctx, keyWaitlist)
	require.NoError(t, err)
	require.EqualValues(t, 0, length)
}

func TestScheduler_EmptyPlaylistSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	emptyPlaylist, err := f.durable.CreatePlaylist(ctx, "u2", "Empty")
	require.NoError(t, err)
	require.NoError(t, f.durable.UpsertUser(ctx, &user.User{ID: "u2", DisplayName: "u2", ActivePlaylistID: emptyPlaylist.ID}))

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u2"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	snap, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", snap.UserID)

	length, err := f.ephem.LLen(ctx, keyWaitlist)
	require.NoError(t, err)
	require.EqualValues(t, 0, length)
}

func TestScheduler_EmptyPlaylistSkipPopsBothDisqualifiedAndSurvivingHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	emptyPlaylist, err := f.durable.CreatePlaylist(ctx, "u2", "Empty")
	require.NoError(t, err)
	require.NoError(t, f.durable.UpsertUser(ctx, &user.User{ID: "u2", DisplayName: "u2", ActivePlaylistID: emptyPlaylist.ID}))
	seedUserWithPlaylist(t, f, "u3", []playlist.Item{
		{Artist: "C1", Title: "Song C", Start: 0, End: 5 * time.Second},
	})

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{})) // u1 plays

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u2"))
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u3"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{})) // u2 disqualified (empty), u3 takes over

	snap, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u3", snap.UserID)

	all, err := f.ephem.LRange(ctx, keyWaitlist, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, all, "u2 evicted, u3 promoted and popped, u1 requeued to tail")
}

func TestScheduler_RemoveWithMultipleWaitlistEntriesPromotesHeadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	seedUserWithPlaylist(t, f, "u2", []playlist.Item{
		{Artist: "B1", Title: "Song B", Start: 0, End: 5 * time.Second},
	})
	seedUserWithPlaylist(t, f, "u3", []playlist.Item{
		{Artist: "C1", Title: "Song C", Start: 0, End: 5 * time.Second},
	})

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{})) // u1 plays

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u2"))
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u3"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{Remove: true})) // operator replaces u1

	snap, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u2", snap.UserID)

	all, err := f.ephem.LRange(ctx, keyWaitlist, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"u3"}, all, "u2 promoted once, u3 stays queued, u1 not requeued")
}

func TestScheduler_VoteTallySealedOnAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
		{Artist: "A2", Title: "Song B", Start: 0, End: 5 * time.Second},
	})
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	first, _, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sched.Upvote(ctx, "voter1"))
	require.NoError(t, f.sched.Favorite(ctx, "voter1"))

	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	sealed, err := f.durable.GetHistoryEntry(ctx, first.HistoryID)
	require.NoError(t, err)
	require.True(t, sealed.Sealed())
	require.Equal(t, []string{"voter1"}, sealed.Upvotes)
	require.Equal(t, []string{"voter1"}, sealed.Favorites)
}

func TestScheduler_WaitlistRotatesPreviousDJToTail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	seedUserWithPlaylist(t, f, "u2", []playlist.Item{
		{Artist: "B1", Title: "Song C", Start: 0, End: 5 * time.Second},
	})

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{})) // u1 plays

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u2"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{})) // u2 plays, u1 requeued to tail

	all, err := f.ephem.LRange(ctx, keyWaitlist, 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, all)
}

func TestScheduler_BoothGoesIdleWhenNoOneLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{Remove: true}))

	_, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScheduler_OnStartRecoversRemainderTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUserWithPlaylist(t, f, "u1", []playlist.Item{
		{Artist: "A1", Title: "Song A", Start: 0, End: 5 * time.Second},
	})
	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.Advance(ctx, AdvanceOptions{}))

	fresh := New(f.ephem, f.durable, broadcast.New(f.ephem, zerolog.Nop()), zerolog.Nop(), 0)
	require.NoError(t, fresh.OnStart(ctx))
	fresh.OnStop()

	snap, ok, err := fresh.CurrentPlay(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u1", snap.UserID)
}
