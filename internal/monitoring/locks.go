package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker serialises work on a single profile. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker with one mutex per key
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, entry)
		return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			k.release(key, entry)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

var luaExtend = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

const defaultLockTTL = 2 * time.Minute

// RedisLocker is a Locker shared by every replica using the same Redis.
// A held lock is extended every ttl/3; a crashed holder releases it after ttl.
type RedisLocker struct {
	cli   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to redisURL and verifies the connection
func NewRedisLocker(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisLockerWithClient(cli, ttl), nil
}

// NewRedisLockerWithClient wraps an existing client
func NewRedisLockerWithClient(cli *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{cli: cli, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock polls SET NX until the key is acquired or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "followwatch:lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}

	done := make(chan struct{})
	go l.keepAlive(key, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := luaUnlock.Run(unlockCtx, l.cli, []string{key}, token).Err(); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to release lock")
			}
		})
	}, nil
}

// keepAlive extends the lock until done is closed or the token no longer owns the key
func (l *RedisLocker) keepAlive(key, token string, done <-chan struct{}) {
	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			extended, err := luaExtend.Run(ctx, l.cli, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to extend lock")
				continue
			}
			if extended == 0 {
				logrus.WithField("key", key).Error("Lock expired while held")
				return
			}
		}
	}
}

// Ping checks the Redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.cli.Ping(ctx).Err()
}

// Close closes the underlying client
func (l *RedisLocker) Close() error {
	return l.cli.Close()
}
