package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript はウィンドウキーを加算し、初回のみ有効期限を設定する。
var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// DefaultRedisPrefix はRedisキーのデフォルト接頭辞。
const DefaultRedisPrefix = "tasktracker:rl:"

// RedisStore はRedisでカウンタを共有するStore。
// キーはウィンドウごとに分かれ、ウィンドウ長の経過で自動的に失効する。
// Redisが利用できない場合はFallbackに委譲する。
type RedisStore struct {
	Client   redis.UniversalClient
	Prefix   string
	Timeout  time.Duration
	Fallback *MemoryStore
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore はMemoryStoreをフォールバックに持つRedisStoreを生成する。
// clientのクローズは呼び出し側が行う。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		Client:   client,
		Prefix:   DefaultRedisPrefix,
		Timeout:  2 * time.Second,
		Fallback: NewMemoryStore(),
	}
}

// Increment はRedis上の(id, window)キーを原子的に加算する。
func (s *RedisStore) Increment(ctx context.Context, id string, window int64, windowLen time.Duration) (int64, error) {
	if s.Client == nil {
		return s.fallback(ctx, id, window, windowLen, fmt.Errorf("redis client is nil"))
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	key := s.Prefix + id + ":" + strconv.FormatInt(window, 10)
	count, err := windowScript.Run(ctx, s.Client, []string{key}, windowLen.Milliseconds()).Int64()
	if err != nil {
		return s.fallback(ctx, id, window, windowLen, err)
	}
	return count, nil
}

func (s *RedisStore) fallback(ctx context.Context, id string, window int64, windowLen time.Duration, cause error) (int64, error) {
	if s.Fallback == nil {
		return 0, fmt.Errorf("redis rate window increment failed: %w", cause)
	}
	slog.Warn("redis unavailable, using in-process rate window",
		slog.String("error", cause.Error()),
	)
	return s.Fallback.Increment(ctx, id, window, windowLen)
}

// SweepBefore はフォールバック側の古いウィンドウを削除する。
func (s *RedisStore) SweepBefore(window int64) int {
	if s.Fallback == nil {
		return 0
	}
	return s.Fallback.SweepBefore(window)
}
