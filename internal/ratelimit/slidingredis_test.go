package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newSliding(t *testing.T) (Sliding, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	return Sliding{Client: client, Prefix: "rl:test:", Now: clock.now}, clock
}

func TestSlidingWindowSlides(t *testing.T) {
	l, clock := newSliding(t)
	ctx := context.Background()
	rule := Rule{Window: 10 * time.Second, Max: 2}

	first, err := l.Allow(ctx, "vnpay:203.0.113.7", rule)
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Remaining)

	clock.t = clock.t.Add(4 * time.Second)
	second, err := l.Allow(ctx, "vnpay:203.0.113.7", rule)
	require.NoError(t, err)
	require.True(t, second.Allowed)
	require.Zero(t, second.Remaining)

	clock.t = clock.t.Add(time.Second)
	third, err := l.Allow(ctx, "vnpay:203.0.113.7", rule)
	require.NoError(t, err)
	require.False(t, third.Allowed)
	require.Equal(t, time.UnixMilli(1_700_000_010_000), third.ResetAt, "reset follows the oldest admitted event")

	clock.t = time.UnixMilli(1_700_000_010_000)
	fourth, err := l.Allow(ctx, "vnpay:203.0.113.7", rule)
	require.NoError(t, err)
	require.True(t, fourth.Allowed, "first event has left the window")
	require.Zero(t, fourth.Remaining)
}

func TestSlidingRejectionsDoNotConsumeBudget(t *testing.T) {
	l, clock := newSliding(t)
	ctx := context.Background()
	rule := Rule{Window: time.Second, Max: 1}

	d, err := l.Allow(ctx, "k", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	for i := 0; i < 5; i++ {
		d, err = l.Allow(ctx, "k", rule)
		require.NoError(t, err)
		require.False(t, d.Allowed)
	}
	clock.t = clock.t.Add(time.Second)
	d, err = l.Allow(ctx, "k", rule)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestHandlerThrottlesPerClientIP(t *testing.T) {
	l, _ := newSliding(t)
	h := Handler{Limiter: l, Key: ByClientIP("vnpay"), Rule: Rule{Window: time.Minute, Max: 1}}
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/ipn", nil)
		req.Header.Set("X-Real-IP", ip)
		rr := httptest.NewRecorder()
		next.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, send("203.0.113.7").Code)
	rr := send("203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Equal(t, http.StatusOK, send("198.51.100.1").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, Rule) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestHandlerFailsOpen(t *testing.T) {
	var reported error
	h := Handler{
		Limiter: brokenLimiter{},
		Key:     func(*http.Request) string { return "static" },
		Rule:    Rule{Window: time.Second, Max: 1},
		OnError: func(err error) { reported = err },
	}
	rr := httptest.NewRecorder()
	h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.EqualError(t, reported, "redis down")
}
