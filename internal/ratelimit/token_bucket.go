package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket state lives in one hash per key. Redis truncates Lua numbers in
// replies, so the fractional token count travels back as a string and the
// wait is computed server-side in whole milliseconds.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
local wait = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), wait}
`

var (
	errBucketUnconfigured = errors.New("rate limiter not configured")
	errBucketArgs         = errors.New("rate limiter needs a key, a positive rate and a positive burst")
	errBucketReply        = errors.New("invalid rate limit script response")
)

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket at key, refilled at rate tokens per
// second up to burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return &RateLimitResult{}, errBucketUnconfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return &RateLimitResult{}, errBucketArgs
	}

	ttl := defaultBucketTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return &RateLimitResult{}, err
	}
	return parseBucketReply(reply, burst)
}

func parseBucketReply(reply []interface{}, burst int) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return &RateLimitResult{}, errBucketReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return &RateLimitResult{}, errBucketReply
	}
	raw, ok := reply[1].(string)
	if !ok {
		return &RateLimitResult{}, errBucketReply
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &RateLimitResult{}, errBucketReply
	}
	waitMs, ok := reply[2].(int64)
	if !ok {
		return &RateLimitResult{}, errBucketReply
	}

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      burst,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: time.Duration(waitMs) * time.Millisecond,
	}, nil
}

// defaultBucketTTL keeps an idle bucket for twice its full refill time.
func defaultBucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
