package redis

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/uwave/booth/internal/storeapi"
)

func TestLock_AcquireContention(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	l := s.Lock()

	lease1, err := l.Acquire(ctx, "booth:advancing", 2*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, lease1.Token())

	_, err = l.Acquire(ctx, "booth:advancing", 2*time.Second)
	require.Error(t, err)
	require.True(t, errors.Is(err, storeapi.ErrAdvanceInProgress))

	require.NoError(t, lease1.Release(ctx))

	lease2, err := l.Acquire(ctx, "booth:advancing", 2*time.Second)
	require.NoError(t, err)
	require.NotEqual(t, lease1.Token(), lease2.Token())
}

func TestLock_ExtendFailsAfterRelease(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()
	l := s.Lock()

	lease, err := l.Acquire(ctx, "booth:advancing", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, lease.Extend(ctx, 2*time.Second))

	require.NoError(t, lease.Release(ctx))

	err = lease.Extend(ctx, 2*time.Second)
	require.Error(t, err)
	require.True(t, errors.Is(err, storeapi.ErrLeaseLost))
}

func TestLock_ReleaseIsFencedAgainstStaleHolders(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()
	l := s.Lock()

	stale, err := l.Acquire(ctx, "booth:advancing", 50*time.Millisecond)
	require.NoError(t, err)

	mr.FastForward(100 * time.Millisecond)

	fresh, err := l.Acquire(ctx, "booth:advancing", 2*time.Second)
	require.NoError(t, err)

	// The stale holder's release must not remove the new holder's key.
	require.NoError(t, stale.Release(ctx))

	require.NoError(t, fresh.Extend(ctx, 2*time.Second))
}
