package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisRateAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`

type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisRateLimiter crea un rate limiter de ventana fija sobre Redis con
// INCR+EXPIRE atomicos via script Lua.
func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "rl:",
	}
}

func (l *redisRateLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.client == nil {
		return true, 0
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false, l.window
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	redisKey := l.prefix + normalizedKey
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	vals, err := l.client.Eval(ctx, redisRateAllowScript, []string{redisKey}, seconds).Int64Slice()
	if err != nil || len(vals) != 2 {
		// Redis caido no debe tirar el flujo; se permite el paso.
		return true, 0
	}
	count, ttl := vals[0], vals[1]
	if count <= int64(l.max) {
		return true, 0
	}
	if ttl < 0 {
		ttl = int64(seconds)
	}
	return false, time.Duration(ttl) * time.Second
}
