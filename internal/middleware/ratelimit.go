package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/ratelimit"
)

// 流量制限の結果を返すレスポンスヘッダー
const (
	HeaderLimitLimit     = "X-Limit-Limit"
	HeaderLimitRemaining = "X-Limit-Remaining"
	HeaderRetryAfter     = "Retry-After"
)

// Admitter は認証主体ごとの流量制限を判定するインターフェース。
// gate.Gateが満たす。
type Admitter interface {
	Admit(ctx context.Context, identity model.Identity) (ratelimit.Decision, error)
}

// NewAdmissionMiddleware は認証主体ごとの固定ウィンドウ流量制限を適用するミドルウェアを返す。
// 判定のたびにX-Limit-LimitとX-Limit-Remainingを付与し、超過時は429とRetry-Afterを返す。
// 認証ミドルウェアの後に配置する。
func NewAdmissionMiddleware(admitter Admitter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, model.NewInvalidCredentialError())
				return
			}

			d, err := admitter.Admit(r.Context(), identity)
			if d.Limit > 0 {
				w.Header().Set(HeaderLimitLimit, strconv.Itoa(d.Limit))
				w.Header().Set(HeaderLimitRemaining, strconv.Itoa(d.Remaining))
			}
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPThrottleConfig はクライアントIPごとのスロットリング設定を保持する。
type IPThrottleConfig struct {
	Rate            rate.Limit    // 許容レート（req/sec）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりのリクエスト数からIPThrottleConfigを生成する。
func PerMinute(n int, cleanupInterval time.Duration) IPThrottleConfig {
	return IPThrottleConfig{
		Rate:            rate.Limit(float64(n) / 60.0),
		Burst:           n,
		CleanupInterval: cleanupInterval,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPThrottle はトークンを持たない公開エンドポイント（/auth）向けに
// クライアントIPごとのトークンバケット制限を管理する。
type IPThrottle struct {
	config IPThrottleConfig

	mu       sync.RWMutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIPThrottle は新しいIPThrottleを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewIPThrottle(config IPThrottleConfig) *IPThrottle {
	t := &IPThrottle{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (t *IPThrottle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Middleware はクライアントIPごとのレート制限ミドルウェアを返す。
func (t *IPThrottle) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !t.getOrCreate(ip).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("reason", "auth_throttle"),
				)
				WriteError(w, model.NewAdmissionExceededError(t.retryAfter()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Count は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (t *IPThrottle) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.limiters)
}

// getOrCreate はクライアントのリミッターを取得または作成する。
func (t *IPThrottle) getOrCreate(ip string) *rate.Limiter {
	t.mu.RLock()
	cl, exists := t.limiters[ip]
	t.mu.RUnlock()

	if exists {
		t.mu.Lock()
		cl.lastAccess = time.Now()
		t.mu.Unlock()
		return cl.limiter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// ダブルチェック
	if cl, exists := t.limiters[ip]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(t.config.Rate, t.config.Burst)
	t.limiters[ip] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (t *IPThrottle) cleanupLoop() {
	ticker := time.NewTicker(t.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (t *IPThrottle) cleanup() {
	ttl := t.config.CleanupInterval * 2
	now := time.Now()

	t.mu.Lock()
	for ip, cl := range t.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(t.limiters, ip)
		}
	}
	t.mu.Unlock()
}

// retryAfter は1トークンが補充されるまでの秒数を返す。
func (t *IPThrottle) retryAfter() int {
	sec := int(math.Ceil(1.0 / float64(t.config.Rate)))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// clientIP はリクエスト元のIPアドレスを返す。
// プロキシ配下ではchiのRealIPミドルウェアでRemoteAddrを書き換えておく。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
