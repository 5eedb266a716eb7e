package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyQuota caps chat usage per user per day using a Redis fixed window.
// The script increments and sets the 24h expiry atomically so the key can
// never be left without a TTL.
type DailyQuota struct {
	rdb   *redis.Client
	limit int
}

var incrWithDailyExpiry = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], 86400)
end
return current
`)

func New(rdb *redis.Client, limit int) *DailyQuota {
	if limit <= 0 {
		limit = 5
	}
	return &DailyQuota{rdb: rdb, limit: limit}
}

// Allow consumes one unit for the user. It returns whether the request may
// proceed and how many units remain afterwards (never negative).
func (q *DailyQuota) Allow(ctx context.Context, userID string) (bool, int, error) {
	key := "chat_quota:" + userID
	count, err := incrWithDailyExpiry.Run(ctx, q.rdb, []string{key}).Int()
	if err != nil {
		return false, 0, err
	}
	if count > q.limit {
		return false, 0, nil
	}
	return true, q.limit - count, nil
}

// Ready reports whether Redis is reachable, for /readyz.
func (q *DailyQuota) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.rdb.Ping(ctx).Err()
}
