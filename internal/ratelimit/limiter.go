// Package ratelimit は識別子ごとの固定ウィンドウ方式のレート制限を提供する。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultLimit はウィンドウあたりのデフォルト許容リクエスト数。
	DefaultLimit = 100
	// DefaultWindow はデフォルトのウィンドウ長。
	DefaultWindow = 60 * time.Second
)

// Config はレート制限の設定。
type Config struct {
	Limit  int           // ウィンドウあたりの許容リクエスト数
	Window time.Duration // ウィンドウ長（秒単位に切り捨てる）
}

// Decision はAllowの判定結果。
type Decision struct {
	Allowed    bool
	Count      int64 // 現在ウィンドウでの累計（今回分を含む）
	Limit      int
	Remaining  int
	RetryAfter int // 拒否時のみ、ウィンドウ境界までの秒数
}

// Store はウィンドウごとのカウンタを保持するインターフェース。
type Store interface {
	// Increment は(id, window)のカウンタを1増やし、増加後の値を返す。
	// 保持しているウィンドウがwindowと異なる場合は0から数え直す。
	Increment(ctx context.Context, id string, window int64, windowLen time.Duration) (int64, error)
}

// windowSweeper は古いウィンドウを掃除できるStore。
type windowSweeper interface {
	SweepBefore(window int64) int
}

// Limiter は固定ウィンドウカウンタによるレート制限を行う。
type Limiter struct {
	store     Store
	limit     int
	windowSec int64
	now       func() time.Time
}

// Option はLimiterのオプション。
type Option func(*Limiter)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New はLimiterを生成する。
// Limit・Windowが0以下の場合はデフォルト値を使用する。
func New(store Store, cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	windowSec := int64(cfg.Window / time.Second)
	if windowSec <= 0 {
		windowSec = int64(DefaultWindow / time.Second)
	}

	l := &Limiter{
		store:     store,
		limit:     cfg.Limit,
		windowSec: windowSec,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit はウィンドウあたりの許容リクエスト数を返す。
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow はidのリクエストを1件数え、許可するかを判定する。
// カウンタは判定前に必ず加算されるため、上限を超えたリクエスト自身も数えられ拒否される。
func (l *Limiter) Allow(ctx context.Context, id string) (Decision, error) {
	if id == "" {
		return Decision{}, errors.New("rate limit identifier is empty")
	}

	nowSec := l.now().Unix()
	window := floorDiv(nowSec, l.windowSec)

	count, err := l.store.Increment(ctx, id, window, time.Duration(l.windowSec)*time.Second)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate window: %w", err)
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   count <= int64(l.limit),
		Count:     count,
		Limit:     l.limit,
		Remaining: remaining,
	}
	if !d.Allowed {
		d.RetryAfter = int(l.windowSec - (nowSec - window*l.windowSec))
	}
	return d, nil
}

// Sweep は現在より前のウィンドウのカウンタを削除し、削除件数を返す。
// 有効期限付きの外部ストアでは何もしない。
func (l *Limiter) Sweep() int {
	s, ok := l.store.(windowSweeper)
	if !ok {
		return 0
	}
	return s.SweepBefore(floorDiv(l.now().Unix(), l.windowSec))
}

// floorDiv は負の値でも切り捨てとなる整数除算。
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
