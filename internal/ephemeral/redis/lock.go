package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/uwave/booth/internal/storeapi"
)

// lock implements storeapi.Lock as a fenced, TTL-bound Redis key.
// Fencing: the value stored at name is a random token unique to the
// holder; extend/release only succeed if the stored value still
// matches the caller's token, so a holder whose lease already expired
// (and was potentially reclaimed by someone else) cannot silently keep
// acting as if it still owned the lock.
type lock struct {
	client *goredis.Client
}

// extendScript resets the TTL on key iff its value still equals token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// releaseScript deletes key iff its value still equals token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (l *lock) Acquire(ctx context.Context, name string, ttl time.Duration) (storeapi.Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if !ok {
		return nil, errors.Mark(errors.Newf("lock %q is held by another instance", name), storeapi.ErrAdvanceInProgress)
	}
	return &lease{client: l.client, name: name, token: token}, nil
}

type lease struct {
	client *goredis.Client
	name   string
	token  string
}

func (lz *lease) Token() string { return lz.token }

func (lz *lease) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, lz.client, []string{lz.name}, lz.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return wrapUnavailable(err)
	}
	if res == 0 {
		return errors.Mark(errors.Newf("lease for %q no longer current", lz.name), storeapi.ErrLeaseLost)
	}
	return nil
}

func (lz *lease) Release(ctx context.Context) error {
	// Best-effort: a failed release is non-fatal because the TTL will
	// eventually clean the key up on its own.
	_, _ = releaseScript.Run(ctx, lz.client, []string{lz.name}, lz.token).Int64()
	return nil
}
