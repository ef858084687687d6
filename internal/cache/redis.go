package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisPrefix = "news-summarizer:cache:"

// Redis stores records as plain string values so several processes can share
// one cache. Concurrent writers are last-write-wins.
type Redis struct {
	client *redis.Client
}

func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Load(ctx context.Context, digest string) ([]byte, error) {
	b, err := r.client.Get(ctx, redisPrefix+digest).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", digest, err)
	}
	return b, nil
}

func (r *Redis) Save(ctx context.Context, e Entry) error {
	if err := r.client.Set(ctx, redisPrefix+e.Digest, e.Record, 0).Err(); err != nil {
		return fmt.Errorf("saving %s: %w", e.Digest, err)
	}
	return nil
}

func (r *Redis) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	err := r.scan(ctx, func(key string, rec []byte) error {
		s.Entries++
		s.Size += int64(len(rec))
		_, storedAt, legacy, err := decodeRecord(rec)
		switch {
		case err != nil:
		case legacy:
			s.Legacy++
		case expired(storedAt, now):
			s.Expired++
		}
		return nil
	})
	return s, err
}

func (r *Redis) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.scan(ctx, func(key string, rec []byte) error {
		_, storedAt, legacy, err := decodeRecord(rec)
		if err != nil || legacy || storedAt.After(cutoff) {
			return nil
		}
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		deleted += n
		return nil
	})
	return deleted, err
}

func (r *Redis) scan(ctx context.Context, fn func(key string, rec []byte) error) error {
	iter := r.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rec, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if err := fn(key, rec); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
