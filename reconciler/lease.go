package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is the cancellation cause of a held context once another
// holder owns the lease.
var ErrLeaseLost = errors.New("reconciler lease lost")

// Lease guards a pass across replicas. Acquire reports false when another
// holder owns the lease. The returned context is cancelled once the lease can
// no longer be confirmed, and release must be called when the work is done.
type Lease interface {
	Acquire(ctx context.Context) (held context.Context, release func(), acquired bool, err error)
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out by ARGV[2] milliseconds while the key
// still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLease is a Lease backed by a single Redis key. A held lease is
// extended every third of its TTL.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease creates a lease on key that expires after ttl unless it is
// renewed or released.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, key: key, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (context.Context, func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, nil, false, err
	}

	held, cancel := context.WithCancelCause(ctx)
	stopped := make(chan struct{})
	go l.keepAlive(held, cancel, token, stopped)

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel(nil)
			<-stopped
			_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{l.key}, token).Err()
		})
	}
	return held, release, true, nil
}

func (l *RedisLease) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, token string, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.extend(ctx, token); err != nil {
				cancel(err)
				return
			}
		}
	}
}

func (l *RedisLease) extend(ctx context.Context, token string) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: extend: %w", ErrLeaseLost, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}
