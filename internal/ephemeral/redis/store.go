// Package redis implements the booth's Ephemeral Store Client and
// Distributed Lock on top of Redis.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/storeapi"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is a Redis-backed storeapi.EphemeralStore.
type Store struct {
	client *goredis.Client
	logger zerolog.Logger
}

// New creates a new Redis-backed ephemeral store and verifies
// connectivity with a ping.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "redis: connection failed"), storeapi.ErrStoreUnavailable)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis ephemeral store")

	return &Store{client: client, logger: logger}, nil
}

// WithClient wraps an already-configured *redis.Client, primarily for
// tests that point at a miniredis instance.
func WithClient(client *goredis.Client, logger zerolog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapUnavailable(err)
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return wrapUnavailable(s.client.Set(ctx, key, value, 0).Err())
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrapUnavailable(s.client.Del(ctx, keys...).Err())
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapUnavailable(err)
	}
	return val, true, nil
}

func (s *Store) RPush(ctx context.Context, key, value string) error {
	return wrapUnavailable(s.client.RPush(ctx, key, value).Err())
}

func (s *Store) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	val, err := s.client.LIndex(ctx, key, index).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapUnavailable(err)
	}
	return val, true, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	return n, wrapUnavailable(err)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	return vals, wrapUnavailable(err)
}

func (s *Store) LRem(ctx context.Context, key string, count int64, value string) error {
	return wrapUnavailable(s.client.LRem(ctx, key, count, value).Err())
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := s.client.SMembers(ctx, key).Result()
	return vals, wrapUnavailable(err)
}

func (s *Store) SAdd(ctx context.Context, key, member string) error {
	return wrapUnavailable(s.client.SAdd(ctx, key, member).Err())
}

func (s *Store) SRem(ctx context.Context, key, member string) error {
	return wrapUnavailable(s.client.SRem(ctx, key, member).Err())
}

func (s *Store) Pipeline(ctx context.Context, fn func(storeapi.Pipeliner) error) error {
	pipe := s.client.Pipeline()
	if err := fn(&pipeliner{pipe: pipe}); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *Store) Multi(ctx context.Context, fn func(storeapi.Pipeliner) error) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return fn(&pipeliner{pipe: pipe})
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *Store) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "redis: marshal publish payload")
	}
	return wrapUnavailable(s.client.Publish(ctx, topic, data).Err())
}

func (s *Store) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error {
	sub := s.client.Subscribe(ctx, topic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}

func (s *Store) Lock() storeapi.Lock {
	return &lock{client: s.client}
}

// pipeliner adapts a redis.Pipeliner (shared by Pipeline and TxPipeline)
// to storeapi.Pipeliner.
type pipeliner struct {
	pipe goredis.Pipeliner
}

func (p *pipeliner) Set(key, value string)  { p.pipe.Set(context.Background(), key, value, 0) }
func (p *pipeliner) Del(keys ...string)     { p.pipe.Del(context.Background(), keys...) }
func (p *pipeliner) RPush(key, value string) {
	p.pipe.RPush(context.Background(), key, value)
}
func (p *pipeliner) LPop(key string)           { p.pipe.LPop(context.Background(), key) }
func (p *pipeliner) SAdd(key, member string)   { p.pipe.SAdd(context.Background(), key, member) }
func (p *pipeliner) SRem(key, member string)   { p.pipe.SRem(context.Background(), key, member) }

func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, "redis"), storeapi.ErrStoreUnavailable)
}
