package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims the log to the window, admits the event only when the
// log has room, and reports the reset time of the oldest retained entry.
// Scores are unix milliseconds.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {admitted, count, reset}
`)

// Sliding keeps a per-key log of admitted events in a Redis sorted set.
// Rejected events are not logged, so a caller that keeps hammering regains
// budget as soon as its oldest admitted event leaves the window.
type Sliding struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Sliding) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || rule.unlimited() {
		return allowAll(rule, now), nil
	}

	res, err := slidingScript.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.Max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     rule.Max,
		Remaining: max(rule.Max-int(res[1]), 0),
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
