package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errContended = errors.New("idempotency: key contended")

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxAttempts bounds retries of optimistic WATCH transactions.
func WithMaxAttempts(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// RedisStore shares keys between instances. Entries carry a TTL, so Redis expires them.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	attempts int
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	s := &RedisStore{client: client, prefix: "storefront:idempotency:", attempts: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) id(key string) string { return s.prefix + hashKey(key) }

// Acquire claims the key with SETNX, falling back to reading whoever holds it.
func (s *RedisStore) Acquire(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	entry := claim(fingerprint, now.UTC(), ttl)
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, Entry{}, fmt.Errorf("idempotency: encode entry: %w", err)
	}
	id := s.id(key)
	for range s.attempts {
		ok, err := s.client.SetNX(ctx, id, payload, entry.ExpiresAt.Sub(entry.CreatedAt)).Result()
		if err != nil {
			return 0, Entry{}, fmt.Errorf("idempotency: redis setnx: %w", err)
		}
		if ok {
			return Acquired, entry, nil
		}
		existing, found, err := s.get(ctx, s.client, id)
		if err != nil {
			return 0, Entry{}, err
		}
		if !found {
			// Expired between SETNX and GET.
			continue
		}
		outcome, err := existing.against(fingerprint)
		return outcome, existing, err
	}
	return 0, Entry{}, errContended
}

// Complete swaps the claim for the finished entry unless another fingerprint took the key.
func (s *RedisStore) Complete(ctx context.Context, key string, entry Entry, now time.Time, ttl time.Duration) error {
	id := s.id(key)
	return s.watch(ctx, id, func(tx *redis.Tx) error {
		current, found, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if found {
			if current.Fingerprint != entry.Fingerprint {
				return ErrKeyReused
			}
			entry.CreatedAt = current.CreatedAt
		}
		done := finished(entry, now.UTC(), ttl)
		payload, err := json.Marshal(done)
		if err != nil {
			return fmt.Errorf("idempotency: encode entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, id, payload, done.ExpiresAt.Sub(now.UTC()))
			return nil
		})
		return err
	})
}

func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	id := s.id(key)
	return s.watch(ctx, id, func(tx *redis.Tx) error {
		current, found, err := s.get(ctx, tx, id)
		if err != nil || !found || current.Fingerprint != fingerprint {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, id)
			return nil
		})
		return err
	})
}

// Sweep has nothing to do; Redis drops entries when their TTL lapses.
func (s *RedisStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) watch(ctx context.Context, id string, fn func(*redis.Tx) error) error {
	for range s.attempts {
		err := s.client.Watch(ctx, fn, id)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errContended
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (Entry, bool, error) {
	raw, err := c.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: decode entry: %w", err)
	}
	return entry, true, nil
}
