package admission

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the in-flight keys.
const DefaultPrefix = "mediarelay:inflight:"

// releaseScript deletes the key only while it still belongs to the holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTable shares the in-flight table between processes with SET NX PX.
type RedisTable struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTable(rdb *redis.Client, ttl time.Duration) *RedisTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTable{rdb: rdb, prefix: DefaultPrefix, ttl: ttl}
}

func (r *RedisTable) Acquire(ctx context.Context, principal, holder string) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+principal, holder, r.ttl).Result()
}

func (r *RedisTable) Release(ctx context.Context, principal, holder string) error {
	return releaseScript.Run(ctx, r.rdb, []string{r.prefix + principal}, holder).Err()
}
