package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/fluxscan/pkg/config"
)

// Window is a request budget shared by every process using the same key.
type Window struct {
	Name     string
	Requests int
	Span     time.Duration
}

// OpenAlgoWindow is the shared OpenAlgo budget: RateLimit requests per second.
func OpenAlgoWindow(cfg config.OpenAlgoConfig) Window {
	n := cfg.RateLimit
	if n < 1 {
		n = 1
	}
	return Window{Name: "openalgo", Requests: n, Span: time.Second}
}

// slidingWindow trims the sorted set to the window and admits the request
// when there is room. A denied request gets back the milliseconds until the
// oldest entry leaves the window.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local span   = tonumber(ARGV[2])
local budget = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - span)
if redis.call('ZCARD', key) < budget then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, span)
	return 0
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return tonumber(oldest[2]) + span - now
`)

// RateLimiter enforces one Window across processes. A disabled client
// admits everything.
type RateLimiter struct {
	client *Client
	key    string
	window Window
	seq    atomic.Uint64
	now    func() time.Time
}

// NewRateLimiter binds a limiter to w under prefix.
func NewRateLimiter(client *Client, prefix string, w Window) *RateLimiter {
	return &RateLimiter{
		client: client,
		key:    fmt.Sprintf("%s:ratelimit:%s", prefix, w.Name),
		window: w,
		now:    time.Now,
	}
}

// Window returns the budget this limiter enforces.
func (r *RateLimiter) Window() Window {
	return r.window
}

// Acquire takes a slot if one is free. Otherwise it returns how long until
// the next slot opens.
func (r *RateLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	if !r.client.Enabled() {
		return 0, nil
	}

	now := r.now().UnixMilli()
	member := fmt.Sprintf("%d-%d", now, r.seq.Add(1))
	retry, err := slidingWindow.Run(ctx, r.client.Redis(), []string{r.key},
		now, r.window.Span.Milliseconds(), r.window.Requests, member).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit %s: %w", r.window.Name, err)
	}
	return time.Duration(retry) * time.Millisecond, nil
}

// Wait blocks until a slot is taken or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		retry, err := r.Acquire(ctx)
		if err != nil {
			return err
		}
		if retry <= 0 {
			return nil
		}

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
