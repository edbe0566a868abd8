// Package auth はトークン発行・検証とパスワード認証を提供する。
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/tasktracker/internal/model"
)

// TokenClass はトークンの種別を表す。
type TokenClass string

const (
	// ClassAccess はAPI呼び出しに使用する短命トークン。
	ClassAccess TokenClass = "access"
	// ClassRefresh はアクセストークンの再発行にのみ使用する長命トークン。
	ClassRefresh TokenClass = "refresh"
)

const (
	// DefaultAccessTTL はアクセストークンのデフォルト有効期間。
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL はリフレッシュトークンのデフォルト有効期間。
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig はトークンサービスの設定。
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims はトークンに署名される内容。
// SubjectにユーザーID、ExpiresAtに有効期限を格納する。
type Claims struct {
	Type TokenClass `json:"type"`
	jwt.RegisteredClaims
}

// TokenService は署名付きトークンの発行と検証を行う。
// 生成後は不変であり、複数ゴルーチンから同時に使用できる。
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// TokenOption はTokenServiceのオプション。
type TokenOption func(*TokenService)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService はTokenServiceを生成する。
// 署名鍵が空の場合はエラーを返す。有効期間が0以下の場合はデフォルト値を使用する。
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	s := &TokenService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Issue はsubjectとclassを埋め込んだ署名付きトークンを発行する。
// 有効期限はclassに応じた有効期間を現在時刻に加算した値。
func (s *TokenService) Issue(subject int64, class TokenClass) (string, time.Time, error) {
	var ttl time.Duration
	switch class {
	case ClassAccess:
		ttl = s.accessTTL
	case ClassRefresh:
		ttl = s.refreshTTL
	default:
		return "", time.Time{}, fmt.Errorf("unknown token class: %q", class)
	}

	now := s.now()
	// NumericDateは秒精度で表現されるため、返却値も揃える
	expiresAt := now.Add(ttl).Truncate(time.Second)

	claims := Claims{
		Type: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify はトークンの署名・有効期限・種別を検証し、subjectのユーザーIDを返す。
// 検証に失敗した場合は理由を問わずInvalidCredentialエラーを返す。
func (s *TokenService) Verify(tokenString string, required TokenClass) (int64, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, model.NewInvalidCredentialError()
	}

	if claims.Type != required {
		return 0, model.NewInvalidCredentialError()
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, model.NewInvalidCredentialError()
	}
	return subject, nil
}
