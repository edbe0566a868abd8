package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowCount は識別子ごとに保持する現在ウィンドウとカウント。
type windowCount struct {
	window int64
	count  int64
}

// MemoryStore はプロセス内のマップでカウンタを保持するStore。
// 識別子ごとに最新ウィンドウの1件のみを保持し、ウィンドウが進むと置き換える。
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]windowCount
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]windowCount)}
}

// Increment は(id, window)のカウンタを加算する。
func (s *MemoryStore) Increment(_ context.Context, id string, window int64, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	curr, ok := s.items[id]
	if !ok || curr.window != window {
		curr = windowCount{window: window}
	}
	curr.count++
	s.items[id] = curr
	return curr.count, nil
}

// SweepBefore はwindowより前のウィンドウのエントリを削除し、削除件数を返す。
func (s *MemoryStore) SweepBefore(window int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, wc := range s.items {
		if wc.window < window {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Len は保持しているエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
