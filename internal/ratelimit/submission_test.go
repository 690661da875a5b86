package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewSubmissionLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, nil)
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())

	ctx := context.Background()
	res, err := limiter.AllowTableOrder(ctx, 4, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowCheckout(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockTable(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleaseTable(ctx, 4, token))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", (*RateLimitResult)(nil).RetryAfterSeconds())
	assert.Equal(t, "2", (&RateLimitResult{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, "3", (&RateLimitResult{RetryAfter: 3 * time.Second}).RetryAfterSeconds())
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(0.5, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}

func TestNilLockerAndBucket(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))

	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}

func TestWithLockWithoutRedisRunsDirectly(t *testing.T) {
	var locker *Locker
	called := false
	err := locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestParseBucketReply(t *testing.T) {
	res, err := parseBucketReply([]interface{}{int64(1), "2.5", int64(0)}, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 5, res.Limit)

	res, err = parseBucketReply([]interface{}{int64(0), "0.25", int64(1500)}, 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)
	assert.Equal(t, "2", res.RetryAfterSeconds())

	_, err = parseBucketReply([]interface{}{int64(1), 2.5}, 5)
	assert.ErrorIs(t, err, errBucketReply)
}
