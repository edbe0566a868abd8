// Package idempotency は変更系リクエストの結果をキー単位で一定期間保持し、
// 再送時に同じ結果を返すためのキャッシュを提供する。
package idempotency

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL は記録のデフォルト保持期間。
const DefaultTTL = 24 * time.Hour

// Record はキャッシュに保存する1件の記録。
type Record struct {
	Payload   []byte
	ExpiresAt time.Time
}

// visibleAt はnow時点で記録が有効かを返す。有効期限ちょうどまでは有効。
func (r Record) visibleAt(now time.Time) bool {
	return !now.After(r.ExpiresAt)
}

// Store は記録を保持するインターフェース。
type Store interface {
	// Load はkeyの記録を返す。now時点で期限切れの記録は削除し、存在しないものとして扱う。
	Load(ctx context.Context, key string, now time.Time) (Record, bool, error)
	// Save はkeyの記録を無条件に上書き保存する。
	Save(ctx context.Context, key string, rec Record, now time.Time) error
}

// expiredSweeper は期限切れの記録を一括削除できるStore。
type expiredSweeper interface {
	SweepExpired(now time.Time) int
}

// Cache は冪等キーごとの結果キャッシュ。
// Lookupで見つからなかったキーを並行する2つのリクエストが同時に処理した場合、
// どちらも実行されうる。最初のStore以降の再送のみが再生される。
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option はCacheのオプション。
type Option func(*Cache)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New はCacheを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup はkeyに保存されたペイロードを返す。
// keyが空の場合は常に見つからないものとして扱う。
func (c *Cache) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	rec, ok, err := c.store.Load(ctx, key, c.now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to load idempotency record: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return rec.Payload, true, nil
}

// Store はデフォルトの保持期間でペイロードを保存する。
func (c *Cache) Store(ctx context.Context, key string, payload []byte) error {
	return c.StoreWithTTL(ctx, key, payload, c.ttl)
}

// StoreWithTTL は指定した保持期間でペイロードを保存する。既存の記録は上書きする。
func (c *Cache) StoreWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	rec := Record{Payload: payload, ExpiresAt: now.Add(ttl)}
	if err := c.store.Save(ctx, key, rec, now); err != nil {
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}
	return nil
}

// Sweep は期限切れの記録を削除し、削除件数を返す。
func (c *Cache) Sweep() int {
	s, ok := c.store.(expiredSweeper)
	if !ok {
		return 0
	}
	return s.SweepExpired(c.now())
}
