package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshLimiter caps how often one caller may force a feed poll, using a
// Redis sorted set as a sliding window so the cap holds across replicas.
type RefreshLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	limit       int
	window      time.Duration
	now         func() time.Time
}

// Trims the window, counts what is left and admits the call only when under
// the limit. Runs atomically on the server.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
    return 0
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// NewRefreshLimiter admits at most limit refreshes per caller within window.
// A limit <= 0 disables limiting.
func NewRefreshLimiter(redisClient *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RefreshLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RefreshLimiter{
		redisClient: redisClient,
		logger:      logger,
		limit:       limit,
		window:      window,
		now:         time.Now,
	}
}

func refreshKey(caller string) string {
	return fmt.Sprintf("refresh:%s", caller)
}

// Allow reports whether caller may trigger a refresh now. Redis errors admit
// the call.
func (l *RefreshLimiter) Allow(ctx context.Context, caller string) bool {
	if l.limit <= 0 {
		return true
	}

	now := l.now().UnixMilli()
	allowed, err := slidingWindowScript.Run(ctx, l.redisClient, []string{refreshKey(caller)},
		now, l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		l.logger.Error("refresh limiter script failed", "error", err, "caller", caller)
		return true
	}

	if allowed == 0 {
		l.logger.Debug("refresh rate limited", "caller", caller, "limit", l.limit)
		return false
	}
	return true
}
