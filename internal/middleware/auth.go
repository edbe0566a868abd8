// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/tasktracker/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var identityContextKey = contextKey("identity")

// Authenticator はアクセストークンから認証主体を解決するインターフェース。
// gate.Gateが満たす。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Identity, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証主体をリクエストコンテキストに注入するミドルウェアを返す。
// トークンの欠落・形式不正・検証失敗はすべて401になる。
func NewAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteError(w, model.NewInvalidCredentialError())
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// IdentityFromContext はリクエストコンテキストから認証主体を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.ID == 0 {
		return model.Identity{}, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに認証主体を注入する。
// ロギングミドルウェアの内側であれば、アクセスログにもuser_idが記録される。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	if info := requestInfoFromContext(ctx); info != nil {
		info.setUserID(identity.ID)
	}
	return context.WithValue(ctx, identityContextKey, identity)
}
