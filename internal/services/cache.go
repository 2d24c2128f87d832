/**
 * @description
 * Cache-aside helpers for latest-quote responses.
 * A nil or unreachable Redis client degrades to a cache miss; the read path
 * never fails because the cache is down.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const latestCacheTTL = time.Minute

func cacheGet(ctx context.Context, rdb *redis.Client, key string, dest interface{}) bool {
	if rdb == nil {
		return false
	}
	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

func cacheSet(ctx context.Context, rdb *redis.Client, key string, v interface{}) {
	if rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	rdb.Set(ctx, key, raw, latestCacheTTL)
}
