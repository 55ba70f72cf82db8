package callgroup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a slot survives a crashed process.
const DefaultTTL = 6 * time.Hour

var acquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit (int)
-- ARGV[2] = ttl_ms (int)
--
-- Returns 1 if a slot was taken, 0 if the group is full.
local current = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = counter key
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// RedisLimiter caps concurrent calls for one client identity across every
// device running a bridge for it.
//
// Safety properties:
// - Atomic acquire using Lua.
// - TTL prevents leaked slots on process crash.
type RedisLimiter struct {
	rdb   redis.Scripter
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, identity string, limit int, ttl time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("callgroup: redis client is nil")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("callgroup: identity is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("callgroup: limit must be > 0, got %d", limit)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLimiter{rdb: rdb, key: Key(identity), limit: limit, ttl: ttl}, nil
}

// Key is the counter key for identity.
func Key(identity string) string {
	return "callgroup:" + identity
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	res, err := acquireScript.Run(ctx, l.rdb, []string{l.key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("callgroup: acquire %s: %w", l.key, err)
	}
	return res == 1, nil
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}).Err(); err != nil {
		return fmt.Errorf("callgroup: release %s: %w", l.key, err)
	}
	return nil
}
