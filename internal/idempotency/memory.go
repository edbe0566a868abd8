package idempotency

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// physicalGrace は論理的な有効期限を過ぎた記録をgo-cacheが自動削除するまでの猶予。
// 期限判定は注入された時計で行い、go-cacheの期限は取り残し防止にのみ使う。
const physicalGrace = time.Minute

// MemoryStore はプロセス内に記録を保持するStore。
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore はMemoryStoreを生成する。
// cleanupIntervalごとにgo-cacheのjanitorが物理的に失効した記録を削除する。
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Load はkeyの記録を返す。
func (s *MemoryStore) Load(_ context.Context, key string, now time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.c.Get(key)
	if !ok {
		return Record{}, false, nil
	}
	rec, ok := v.(Record)
	if !ok || !rec.visibleAt(now) {
		s.c.Delete(key)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save はkeyの記録を上書き保存する。
func (s *MemoryStore) Save(_ context.Context, key string, rec Record, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Set(key, rec, rec.ExpiresAt.Sub(now)+physicalGrace)
	return nil
}

// SweepExpired はnow時点で期限切れの記録を削除し、削除件数を返す。
func (s *MemoryStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, item := range s.c.Items() {
		rec, ok := item.Object.(Record)
		if !ok || !rec.visibleAt(now) {
			s.c.Delete(key)
			removed++
		}
	}
	return removed
}

// Len は保持している記録数を返す。テスト用。
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}
