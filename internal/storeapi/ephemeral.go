package storeapi

import (
	"context"
	"time"
)

// EphemeralStore is a thin facade over a remote key/value+list+set store
// supporting atomic pipelines, publish/subscribe, and TTL-based
// distributed locks. The booth depends only on this abstract surface;
// any backing store offering these semantics suffices.
type EphemeralStore interface {
	// Get returns the string value at key, or ("", false, nil) if absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value at key with no expiry.
	Set(ctx context.Context, key, value string) error
	// Del removes one or more keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// LPop removes and returns the head of the list at key.
	LPop(ctx context.Context, key string) (string, bool, error)
	// RPush appends value to the tail of the list at key.
	RPush(ctx context.Context, key, value string) error
	// LIndex returns the element at index (0-based, head to tail).
	LIndex(ctx context.Context, key string, index int64) (string, bool, error)
	// LLen returns the length of the list at key.
	LLen(ctx context.Context, key string) (int64, error)
	// LRange returns elements between start and stop, inclusive
	// (Redis semantics: -1 is the last element).
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LRem removes up to count occurrences of value from the list.
	LRem(ctx context.Context, key string, count int64, value string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)
	// SAdd adds member to the set at key.
	SAdd(ctx context.Context, key, member string) error
	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error

	// Pipeline runs fn against a batched, non-transactional read/modify
	// sequence: commands queue and are flushed together, reducing round
	// trips, but a failure partway does not roll back earlier commands.
	Pipeline(ctx context.Context, fn func(Pipeliner) error) error
	// Multi runs fn against an all-or-nothing atomic write sequence.
	Multi(ctx context.Context, fn func(Pipeliner) error) error

	// Publish serializes payload as JSON and forwards it to topic.
	// Publish failures are the caller's responsibility to treat as
	// non-fatal per the error handling design.
	Publish(ctx context.Context, topic string, payload any) error
	// Subscribe registers handler for messages arriving on topic. It
	// blocks until ctx is cancelled or the subscription errors.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error

	// Lock returns the store's distributed lock, from which named
	// leases are acquired. See Lock for semantics.
	Lock() Lock
}

// Pipeliner is the batched command surface available inside
// EphemeralStore.Pipeline and EphemeralStore.Multi. It mirrors the
// single-command surface but commands are not applied until the
// enclosing pipeline/multi call returns without error.
type Pipeliner interface {
	Set(key, value string)
	Del(keys ...string)
	RPush(key, value string)
	LPop(key string)
	SAdd(key, member string)
	SRem(key, member string)
}

// Lock is a fenced, lease-based distributed mutex keyed by a
// well-known name.
type Lock interface {
	// Acquire attempts to place a unique fencing token at name with
	// expiry ttl. It returns ErrAdvanceInProgress (wrapped) if another
	// holder currently owns the lock.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease represents ownership of a Lock for a bounded interval.
type Lease interface {
	// Extend resets the lease's expiry to ttl from now, iff the lease's
	// fencing token is still current. It returns ErrLeaseLost otherwise.
	Extend(ctx context.Context, ttl time.Duration) error
	// Release removes the lock's key iff the token still matches.
	// Failure to release is non-fatal; the TTL will clean it up.
	Release(ctx context.Context) error
	// Token returns the lease's opaque fencing token, for callers that
	// gate durable writes on it per the distributed lock correctness note.
	Token() string
}
