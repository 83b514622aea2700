package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	resignScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLeaderElector leads while it owns a lease key. Every check renews an
// owned lease; KeepAlive renews it in the background.
type RedisLeaderElector struct {
	client redis.UniversalClient
	key    string
	nodeID string
	ttl    time.Duration
	logger *zap.SugaredLogger

	leading atomic.Bool
}

func NewRedisLeaderElector(client redis.UniversalClient, key, nodeID string, ttl time.Duration, logger *zap.SugaredLogger) *RedisLeaderElector {
	return &RedisLeaderElector{
		client: client,
		key:    key,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisLeaderElector) IsControllingLeader(ctx context.Context) bool {
	acquired, err := l.client.SetNX(ctx, l.key, l.nodeID, l.ttl).Result()
	if err != nil {
		l.logger.Errorw("Leader election failed", "key", l.key, "error", err)
		return l.transition(false)
	}
	if acquired {
		return l.transition(true)
	}

	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.nodeID, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.logger.Errorw("Leader lease renewal failed", "key", l.key, "error", err)
		return l.transition(false)
	}
	return l.transition(renewed == 1)
}

// KeepAlive refreshes the lease every third of its ttl until ctx is done.
func (l *RedisLeaderElector) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.IsControllingLeader(ctx)
		}
	}
}

func (l *RedisLeaderElector) Resign(ctx context.Context) error {
	l.transition(false)
	return resignScript.Run(ctx, l.client, []string{l.key}, l.nodeID).Err()
}

func (l *RedisLeaderElector) transition(leading bool) bool {
	if l.leading.Swap(leading) != leading {
		if leading {
			l.logger.Infow("Acquired leadership", "key", l.key, "node", l.nodeID)
		} else {
			l.logger.Infow("Lost leadership", "key", l.key, "node", l.nodeID)
		}
	}
	return leading
}
