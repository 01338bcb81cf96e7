package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stocksense/stocksense/internal/config"
)

// Locker grants exclusive access to a key until the returned release
// function is called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// keyedMutex serializes callers per key inside one process. Entries are
// reference counted so idle keys do not accumulate.
type keyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			k.drop(key, s)
		}, nil
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX) that extends the
// per-category single-writer rule across service instances.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisLocker creates a locker whose locks expire after ttl.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", fullKey, err)
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
