package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/actionartem/taskganttback/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
local refill = (delta * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tokens}
`

// RateLimiter 基于 Redis 的令牌桶限流器。
//
// 每个 key 一个独立的桶，服务的多个实例共享同一份配额。
// nil 接收者是无操作，允许未配置 Redis 时直接放行。
type RateLimiter struct {
	rdb       *redis.Client
	keyPrefix string
	rate      float64
	burst     float64
	logger    *slog.Logger
	script    *redis.Script
}

// NewRedisRateLimiter 创建限流器。rate 为每秒补充的令牌数，burst 为桶容量。
func NewRedisRateLimiter(rdb *redis.Client, logger *slog.Logger, keyPrefix string, rate float64, burst float64) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "tracker:ratelimit"
	}
	return &RateLimiter{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		rate:      rate,
		burst:     burst,
		logger:    logger,
		script:    redis.NewScript(tokenBucketLua),
	}
}

// Allow 非阻塞地尝试为 key 取一个令牌。
//
// 被拒绝时返回建议的重试等待时间。Redis 出错时放行并记日志，
// 限流是保护手段而不是正确性约束。
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		return true, 0
	}

	now := time.Now().UnixMilli()
	fullKey := r.keyPrefix + ":" + key
	res, err := r.script.Run(ctx, r.rdb, []string{fullKey}, r.rate, r.burst, now, 1).Result()
	if err != nil {
		r.logger.Warn("ratelimit eval failed, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return true, 0
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		r.logger.Warn("ratelimit invalid result, allowing request",
			slog.String("key", key),
			slog.String("result", fmt.Sprintf("%v", res)))
		return true, 0
	}

	allowed := toInt64(values[0]) == 1
	waitMs := toInt64(values[1])
	if !allowed {
		metrics.RateLimitRejectedTotal.Inc()
		return false, time.Duration(waitMs) * time.Millisecond
	}
	return true, 0
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if t == "" {
			return 0
		}
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
