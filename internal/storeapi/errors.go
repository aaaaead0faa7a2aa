// Package storeapi defines the abstract collaborators the booth core
// depends on: the ephemeral store, the durable record store, and the
// source resolver. Concrete implementations live in sibling packages
// (internal/ephemeral/redis, internal/durable/sqlite,
// internal/resolver/spotify); the booth depends only on these
// interfaces, per the component design.
package storeapi

import "github.com/cockroachdb/errors"

// Error kinds from the error handling design. Callers classify errors
// with errors.Is against these sentinels.
var (
	// ErrNotFound is returned for a missing playlist, item, media, or user.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned for invalid playlist item input or patches.
	ErrBadRequest = errors.New("bad request")

	// ErrEmptyPlaylist is returned internally when the next DJ's active
	// playlist has no items. The booth scheduler handles it locally by
	// recursing into advance with remove=true; it should never escape
	// to a caller unless that recursion also fails.
	ErrEmptyPlaylist = errors.New("playlist is empty")

	// ErrAdvanceInProgress is returned when booth:advancing is held by
	// another instance.
	ErrAdvanceInProgress = errors.New("advance already in progress")

	// ErrLeaseLost is returned when a held lease's fencing token no
	// longer matches what the store holds, meaning its TTL expired and
	// another instance may have taken over.
	ErrLeaseLost = errors.New("lease lost")

	// ErrStoreUnavailable is returned when the ephemeral or durable
	// store connection drops.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPersistFailure is returned when a bulk durable write fails;
	// callers surface a generic message and do not leak store detail.
	ErrPersistFailure = errors.New("could not save playlist items")
)
