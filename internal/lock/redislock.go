// Package lock provides short-lived Redis mutexes that serialise work on one
// order across api replicas.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
)

// ErrLost means the lease expired, or was taken over, before Release.
var ErrLost = errors.New("lock: lease lost before release")

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// OrderKey is the lock key for payment work on one order.
func OrderKey(orderID string) string {
	return "lock:order:" + strings.TrimSpace(orderID)
}

// Locker hands out leases keyed by string. Acquisition polls every
// RetryBackoff until the key frees up or ctx ends.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// Lease is a held lock. Only the holder's token can release it.
type Lease struct {
	r     *redis.Client
	key   string
	token string
}

func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	lease := &Lease{r: l.R, key: key, token: uuid.NewString()}

	ticker := time.NewTicker(backoff)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, lease.token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release frees the lease. It returns ErrLost when the key no longer holds
// this lease's token.
func (s *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, s.r, []string{s.key}, s.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

// WithLock runs fn while holding key. The lease is released on a fresh
// context so a cancelled caller still frees it. A lost lease surfaces as
// ErrLost only when fn itself succeeded.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	fnErr := fn(ctx)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := lease.Release(releaseCtx); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}
