package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow admits a request when fewer than ARGV[3] requests were
// recorded in the last ARGV[4] ms. Returns {admitted, remaining}.
var slidingWindow = redis.NewScript(`
local key       = KEYS[1]
local now       = tonumber(ARGV[1])
local limit     = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', tonumber(ARGV[2]))
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, 0}
end
redis.call('ZADD', key, now, ARGV[5])
redis.call('PEXPIRE', key, window_ms)
return {1, limit - count - 1}
`)

// pollInterval is how often Wait re-checks a full window
const pollInterval = 100 * time.Millisecond

// RateLimiter shares a provider request budget across processes
// ⭐ SSOT: shared rate limits live here only
type RateLimiter struct {
	client *Client
	prefix string
	now    func() time.Time
	seq    atomic.Uint64
}

// RateLimitConfig is one named request budget
type RateLimitConfig struct {
	Key    string // e.g. "provider:marketdata"
	Limit  int
	Window time.Duration
}

func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow records one request if the window has room.
// Returns (allowed, remaining, error). A disabled client always admits.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := r.now().UnixMilli()
	// member must be unique so two requests in the same millisecond both count
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	res, err := slidingWindow.Run(ctx, r.client.Redis(),
		[]string{r.prefix + ":" + cfg.Key},
		now, now-cfg.Window.Milliseconds(), cfg.Limit, cfg.Window.Milliseconds(), member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", cfg.Key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected reply %v", cfg.Key, res)
	}

	return res[0] == 1, int(res[1]), nil
}

// Wait blocks until Allow admits the request or ctx is done
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, _, err := r.Allow(ctx, cfg)
		if err != nil || ok {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProviderRateLimit builds the shared limit for one upstream provider.
// Every process talking to the same provider shares the window.
func ProviderRateLimit(provider string, perSecond float64) RateLimitConfig {
	limit := int(perSecond)
	if limit < 1 {
		limit = 1
	}
	return RateLimitConfig{
		Key:    "provider:" + provider,
		Limit:  limit,
		Window: time.Second,
	}
}
