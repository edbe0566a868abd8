// Package gate は認証・流量制限・冪等再生をまとめたリクエストゲートを提供する。
//
// 各APIリクエストは Authenticate → Admit → (変更系のみ Replay) → ハンドラー → (変更系のみ Remember)
// の順にゲートを通過する。所有者の認可はレコード取得後にハンドラー内で authz が判定する。
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hitoshi/tasktracker/internal/auth"
	"github.com/hitoshi/tasktracker/internal/idempotency"
	"github.com/hitoshi/tasktracker/internal/metrics"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/ratelimit"
)

// UserFinder はトークンのsubjectからユーザーを解決するインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// CachedResponse は冪等キャッシュに保存するレスポンス。
// 再送時はこの内容をそのまま返す。
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Gate はリクエストごとの認証・流量制限・冪等再生を判定する。
type Gate struct {
	tokens  *auth.TokenService
	users   UserFinder
	limiter *ratelimit.Limiter
	cache   *idempotency.Cache
	metrics metrics.MetricsCollector
}

// Option はGateのオプション。
type Option func(*Gate)

// WithMetrics はゲート判定を記録するメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// New はGateを生成する。
func New(tokens *auth.TokenService, users UserFinder, limiter *ratelimit.Limiter, cache *idempotency.Cache, opts ...Option) *Gate {
	g := &Gate{
		tokens:  tokens,
		users:   users,
		limiter: limiter,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate はアクセストークンを検証し、ユーザーストアから認証主体を解決する。
// トークンが無効な場合やユーザーが存在しない場合はInvalidCredentialエラーを返す。
func (g *Gate) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	if token == "" {
		g.record(metrics.StageAuthenticate, metrics.OutcomeDenied)
		return model.Identity{}, model.NewInvalidCredentialError()
	}

	userID, err := g.tokens.Verify(token, auth.ClassAccess)
	if err != nil {
		g.record(metrics.StageAuthenticate, metrics.OutcomeDenied)
		return model.Identity{}, err
	}

	user, err := g.users.FindByID(ctx, userID)
	if err != nil {
		g.record(metrics.StageAuthenticate, metrics.OutcomeError)
		return model.Identity{}, fmt.Errorf("failed to resolve token subject: %w", err)
	}
	if user == nil {
		g.record(metrics.StageAuthenticate, metrics.OutcomeDenied)
		slog.Warn("token subject no longer exists",
			slog.Int64("user_id", userID),
		)
		return model.Identity{}, model.NewInvalidCredentialError()
	}

	g.record(metrics.StageAuthenticate, metrics.OutcomeAllowed)
	return model.IdentityOf(user), nil
}

// Admit は認証主体のリクエストを流量制限に数える。
// 上限を超えた場合は判定結果とともにAdmissionExceededエラーを返す。
func (g *Gate) Admit(ctx context.Context, identity model.Identity) (ratelimit.Decision, error) {
	d, err := g.limiter.Allow(ctx, rateKey(identity))
	if err != nil {
		g.record(metrics.StageAdmit, metrics.OutcomeError)
		return ratelimit.Decision{}, err
	}
	if !d.Allowed {
		g.record(metrics.StageAdmit, metrics.OutcomeDenied)
		slog.Warn("rate limit exceeded",
			slog.Int64("user_id", identity.ID),
			slog.Int("retry_after", d.RetryAfter),
		)
		return d, model.NewAdmissionExceededError(d.RetryAfter)
	}
	g.record(metrics.StageAdmit, metrics.OutcomeAllowed)
	return d, nil
}

// Limit はウィンドウあたりの許容リクエスト数を返す。
func (g *Gate) Limit() int {
	return g.limiter.Limit()
}

// Replay は認証主体と冪等キーに対応する保存済みレスポンスを返す。
// keyが空の場合は常に見つからない。
func (g *Gate) Replay(ctx context.Context, identity model.Identity, key string) (*CachedResponse, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	payload, ok, err := g.cache.Lookup(ctx, cacheKey(identity, key))
	if err != nil {
		g.record(metrics.StageReplay, metrics.OutcomeError)
		return nil, false, err
	}
	if !ok {
		g.record(metrics.StageReplay, metrics.OutcomeMiss)
		return nil, false, nil
	}

	var resp CachedResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.record(metrics.StageReplay, metrics.OutcomeError)
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	g.record(metrics.StageReplay, metrics.OutcomeHit)
	return &resp, true, nil
}

// Remember はレスポンスを認証主体と冪等キーに対応付けて保存する。
func (g *Gate) Remember(ctx context.Context, identity model.Identity, key string, resp CachedResponse) error {
	if key == "" {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := g.cache.Store(ctx, cacheKey(identity, key), payload); err != nil {
		g.record(metrics.StageReplay, metrics.OutcomeError)
		return err
	}
	g.record(metrics.StageReplay, metrics.OutcomeStored)
	return nil
}

func (g *Gate) record(stage, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordGateDecision(stage, outcome)
	}
}

// rateKey は流量制限の識別子を返す。
func rateKey(identity model.Identity) string {
	return "user:" + strconv.FormatInt(identity.ID, 10)
}

// cacheKey は冪等キーを認証主体ごとの名前空間に閉じ込める。
func cacheKey(identity model.Identity, key string) string {
	return "user:" + strconv.FormatInt(identity.ID, 10) + ":" + key
}
