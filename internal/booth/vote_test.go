package booth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduler_JoinWaitlistRejectsDuplicateAndCurrentDJ(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.Error(t, f.sched.JoinWaitlist(ctx, "u1"))

	require.NoError(t, f.ephem.Set(ctx, keyCurrentDJ, "u2"))
	require.Error(t, f.sched.JoinWaitlist(ctx, "u2"))
}

func TestScheduler_LeaveWaitlistIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.JoinWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.LeaveWaitlist(ctx, "u1"))
	require.NoError(t, f.sched.LeaveWaitlist(ctx, "u1"))

	length, err := f.ephem.LLen(ctx, keyWaitlist)
	require.NoError(t, err)
	require.EqualValues(t, 0, length)
}

func TestScheduler_UpvoteClearsExistingDownvote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Downvote(ctx, "voter1"))
	require.NoError(t, f.sched.Upvote(ctx, "voter1"))

	down, err := f.ephem.SMembers(ctx, keyDownvotes)
	require.NoError(t, err)
	require.Empty(t, down)

	up, err := f.ephem.SMembers(ctx, keyUpvotes)
	require.NoError(t, err)
	require.Equal(t, []string{"voter1"}, up)
}

func TestScheduler_CurrentPlayReportsIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.sched.CurrentPlay(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
