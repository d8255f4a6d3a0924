package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStoreOptions configures the Redis driver.
type RedisStoreOptions struct {
	// TTL is the sliding idle expiry applied on every read and write.
	TTL time.Duration
	// Policy controls summarization.
	Policy Policy
	// MaxTxRetries bounds optimistic-locking retries on contended keys.
	MaxTxRetries int
}

// RedisStore persists session records as JSON values with a sliding TTL.
// Mutations run under WATCH/MULTI/EXEC so concurrent appenders on the same
// session never lose turns.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	policy       Policy
	maxTxRetries int
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisStoreOptions)) *RedisStore {
	opts := RedisStoreOptions{
		TTL:          30 * time.Minute,
		Policy:       DefaultPolicy(),
		MaxTxRetries: 5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{
		client:       client,
		ttl:          opts.TTL,
		policy:       opts.Policy,
		maxTxRetries: opts.MaxTxRetries,
	}
}

func redisKey(id string) string { return redisKeyPrefix + id }

// Get implements Store. Reading refreshes the sliding TTL.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	if err := s.client.Expire(ctx, redisKey(id), s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("refresh session %s ttl: %w", id, err)
	}
	return &rec, nil
}

// mutate runs fn over the current record under optimistic locking and
// writes the result back with a refreshed TTL. fn returning false skips
// the write.
func (s *RedisStore) mutate(ctx context.Context, id string, fn func(rec *Record) (bool, error)) error {
	key := redisKey(id)

	txn := func(tx *redis.Tx) error {
		var rec *Record
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			rec = NewRecord(id, time.Now())
		case err != nil:
			return fmt.Errorf("get session %s: %w", id, err)
		default:
			rec = &Record{}
			if err := sonic.Unmarshal(data, rec); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
		}

		write, err := fn(rec)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}
		rec.Updated = time.Now()

		encoded, err := sonic.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxTxRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session %s: too much contention", id)
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, id string, turns ...Turn) error {
	return s.mutate(ctx, id, func(rec *Record) (bool, error) {
		for _, t := range turns {
			rec.insertTurn(t)
		}
		// Write even when idempotent appends changed nothing so a fresh
		// record still gets created and the TTL slides.
		return true, nil
	})
}

// SummarizeIfNeeded implements Store.
func (s *RedisStore) SummarizeIfNeeded(ctx context.Context, id string, summarize SummaryFunc) error {
	return s.mutate(ctx, id, func(rec *Record) (bool, error) {
		return compact(ctx, rec, s.policy, summarize)
	})
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
