package pacer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultSlotKey is the redis key RedisGate claims.
const DefaultSlotKey = "osmutils:overpass:slot"

// RedisGate paces requests across processes that share an endpoint. Each
// request claims the slot key with SET NX and a TTL of the spacing, so two
// claims are always at least spacing apart. The local Gate still applies
// the advisory pause and serializes this process's callers.
//
// Redis failures fall back to local pacing; they never fail Wait.
type RedisGate struct {
	local   *Gate
	rdb     *redis.Client
	key     string
	spacing time.Duration
	owner   string
	log     *slog.Logger
}

// NewRedisGate creates a gate on rdb. An empty key means DefaultSlotKey.
func NewRedisGate(rdb *redis.Client, key string, advisor Advisor, spacing time.Duration, log *slog.Logger) *RedisGate {
	if key == "" {
		key = DefaultSlotKey
	}
	if spacing < time.Millisecond {
		spacing = time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisGate{
		local:   NewGate(advisor, spacing),
		rdb:     rdb,
		key:     key,
		spacing: spacing,
		owner:   uuid.NewString(),
		log:     log,
	}
}

// Wait passes the local gate, then holds the shared key for one spacing.
func (g *RedisGate) Wait(ctx context.Context) error {
	if err := g.local.Wait(ctx); err != nil {
		return err
	}
	if g.rdb == nil {
		return nil
	}

	for {
		ok, err := g.rdb.SetNX(ctx, g.key, g.owner, g.spacing).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Warn("redis_gate_unavailable", "key", g.key, "error", err)
			return nil
		}
		if ok {
			return nil
		}

		ttl, err := g.rdb.PTTL(ctx, g.key).Result()
		if err != nil || ttl <= 0 {
			// expired between the two calls, or no ttl; retry shortly
			ttl = g.spacing / 4
		}
		if err := sleepCtx(ctx, ttl); err != nil {
			return err
		}
	}
}
