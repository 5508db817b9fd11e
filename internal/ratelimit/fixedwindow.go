package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow counts events in aligned periods through a ulule limiter store.
type FixedWindow struct {
	Store limiter.Store
}

func NewFixedWindow(rdb *redis.Client, prefix string) (FixedWindow, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return FixedWindow{}, err
	}
	return FixedWindow{Store: store}, nil
}

func (f FixedWindow) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if f.Store == nil || rule.unlimited() {
		return allowAll(rule, time.Now()), nil
	}
	lc, err := limiter.New(f.Store, limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)}).Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lc.Reached,
		Limit:     int(lc.Limit),
		Remaining: int(lc.Remaining),
		ResetAt:   time.Unix(lc.Reset, 0),
	}, nil
}
