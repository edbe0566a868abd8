package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix はRedisキーのデフォルト接頭辞。
const DefaultRedisPrefix = "tasktracker:idem:"

// redisRecord はRedisに保存する記録の形式。
type redisRecord struct {
	Payload   []byte    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisStore はRedisに記録を保持するStore。
// 複数プロセス間で記録を共有する場合に使用する。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore はRedisStoreを生成する。clientのクローズは呼び出し側が行う。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultRedisPrefix}
}

// Load はkeyの記録を返す。期限切れの記録は削除する。
func (s *RedisStore) Load(ctx context.Context, key string, now time.Time) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		// 読めない記録は存在しないものとして破棄する
		_ = s.client.Del(ctx, s.prefix+key).Err()
		return Record{}, false, nil
	}

	rec := Record{Payload: rr.Payload, ExpiresAt: rr.ExpiresAt}
	if !rec.visibleAt(now) {
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			return Record{}, false, fmt.Errorf("redis del: %w", err)
		}
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save はkeyの記録を上書き保存する。Redis側の有効期限は保持期間に猶予を加えた値。
func (s *RedisStore) Save(ctx context.Context, key string, rec Record, now time.Time) error {
	raw, err := json.Marshal(redisRecord{Payload: rec.Payload, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, rec.ExpiresAt.Sub(now)+physicalGrace).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
