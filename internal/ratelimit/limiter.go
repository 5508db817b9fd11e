// Package ratelimit throttles callers per key using Redis-backed counters.
package ratelimit

import (
	"context"
	"time"
)

// Rule caps a key at Max events per Window. A zero rule is unlimited.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) unlimited() bool { return r.Max <= 0 || r.Window <= 0 }

// Decision is the outcome of counting one event.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func allowAll(rule Rule, now time.Time) Decision {
	return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max, ResetAt: now.Add(rule.Window)}
}

// Limiter counts one event for key against rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}
