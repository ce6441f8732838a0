package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var errNonceExpired = errors.New("auth: nonce expiry is in the past")

// NonceStore remembers webhook nonces until they expire. UseNonce reports false for a
// nonce already seen in the same scope.
type NonceStore interface {
	UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error)
}

func nonceKey(scope, nonce string) (string, error) {
	if scope == "" || nonce == "" {
		return "", errors.New("auth: scope and nonce are required")
	}
	return scope + "::" + nonce, nil
}

// InMemoryNonceStore only protects a single instance.
type InMemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{seen: make(map[string]time.Time), now: time.Now}
}

func (s *InMemoryNonceStore) UseNonce(_ context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	key, err := nonceKey(scope, nonce)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry.Before(now) {
		return false, errNonceExpired
	}
	for k, until := range s.seen {
		if until.Before(now) {
			delete(s.seen, k)
		}
	}
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = expiry
	return true, nil
}

// RedisNonceStore shares nonces between instances using SETNX with a TTL.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisNonceStore(client redis.UniversalClient) (*RedisNonceStore, error) {
	if client == nil {
		return nil, errors.New("auth: redis client is required")
	}
	return &RedisNonceStore{client: client, prefix: "storefront:nonce:", now: time.Now}, nil
}

func (s *RedisNonceStore) UseNonce(ctx context.Context, scope, nonce string, expiry time.Time) (bool, error) {
	key, err := nonceKey(scope, nonce)
	if err != nil {
		return false, err
	}
	ttl := expiry.Sub(s.now())
	if ttl <= 0 {
		return false, errNonceExpired
	}
	fresh, err := s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("auth: redis setnx: %w", err)
	}
	return fresh, nil
}
