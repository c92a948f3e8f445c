// Package redislock serializes capacity mutations across replicas with
// Redis leases.
package redislock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"activityhub/internal/app/capacity"
	"activityhub/internal/domain/shared/apperr"
)

const op = "capacity.lock"

const (
	WindowPrefix      = "activityhub:lock:window:"
	IdempotencyPrefix = "activityhub:lock:idempotency:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	// Timeout bounds how long Acquire waits for a busy key.
	Timeout time.Duration
	// TTL is the lease length. A crashed holder blocks the key at most this long.
	TTL    time.Duration
	Retry  time.Duration
	Prefix string
}

func New(client redis.UniversalClient, timeout time.Duration) *Locker {
	return &Locker{
		client:  client,
		Timeout: timeout,
		TTL:     5 * time.Second,
		Retry:   10 * time.Millisecond,
		Prefix:  WindowPrefix,
	}
}

// Scoped returns a locker sharing the client under another key prefix and
// lease. Only the original closes the client.
func (l *Locker) Scoped(prefix string, ttl time.Duration) *Locker {
	scoped := *l
	scoped.Prefix = prefix
	scoped.TTL = ttl
	return &scoped
}

// NewFromURL parses a redis:// URL.
func NewFromURL(rawURL string, timeout time.Duration) (*Locker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opts), timeout), nil
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.Prefix + key
	deadline := time.NewTimer(l.timeout())
	defer deadline.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl()).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, apperr.ReservationTimeout(op, "%s: %v", redisKey, ctx.Err())
			}
			return nil, &apperr.Error{Kind: apperr.ErrReservationTimeout, Op: op, Msg: "lock store unavailable", Err: err}
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}
		wait := time.NewTimer(l.retry())
		select {
		case <-wait.C:
		case <-deadline.C:
			wait.Stop()
			return nil, apperr.ReservationTimeout(op, "%s is busy, retry later", redisKey)
		case <-ctx.Done():
			wait.Stop()
			return nil, apperr.ReservationTimeout(op, "%s: %v", redisKey, ctx.Err())
		}
	}
}

// unlocker releases the lease even when the caller's context is done. A
// failed release only delays other holders until the lease expires.
func (l *Locker) unlocker(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Locker) Close() error {
	return l.client.Close()
}

func (l *Locker) timeout() time.Duration {
	if l.Timeout <= 0 {
		return 2 * time.Second
	}
	return l.Timeout
}

func (l *Locker) ttl() time.Duration {
	if l.TTL <= 0 {
		return 5 * time.Second
	}
	return l.TTL
}

func (l *Locker) retry() time.Duration {
	if l.Retry <= 0 {
		return 10 * time.Millisecond
	}
	return l.Retry
}

var _ capacity.Locker = (*Locker)(nil)
