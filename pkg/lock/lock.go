package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the key stays held by someone else until the context is done.
var ErrNotAcquired = errors.New("lock not acquired")

const pollInterval = 50 * time.Millisecond

// Locker serialises work on a single key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Release frees a held lock. Releasing an expired or stolen lock is a no-op.
type Release func(ctx context.Context) error

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker keeps locks in Redis so that several API replicas share them.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker builds a locker on top of the shared Redis client.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire polls SET NX PX until the key is free or ctx expires.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := l.prefix + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("release lock %s: %w", key, err)
				}
				return nil
			}, nil
		}
		if err := wait(ctx); err != nil {
			return nil, err
		}
	}
}

// LocalLocker is the in-process locker used when Redis is disabled.
type LocalLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

// NewLocalLocker returns an in-memory locker with the given lease.
func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LocalLocker{ttl: ttl, held: make(map[string]localEntry), clock: time.Now}
}

// Acquire blocks until key is free or ctx expires. Leases expire after ttl.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	for {
		if l.tryAcquire(key, token) {
			return func(context.Context) error {
				l.mu.Lock()
				defer l.mu.Unlock()
				if entry, ok := l.held[key]; ok && entry.token == token {
					delete(l.held, key)
				}
				return nil
			}, nil
		}
		if err := wait(ctx); err != nil {
			return nil, err
		}
	}
}

func (l *LocalLocker) tryAcquire(key, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return false
	}
	l.held[key] = localEntry{token: token, expiresAt: now.Add(l.ttl)}
	return true
}

func wait(ctx context.Context) error {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
