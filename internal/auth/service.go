package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
)

// TokenPair はログイン・登録・リフレッシュで返すトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
}

// Service は登録・ログイン・トークン再発行のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenService
	hasher   PasswordHasher
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenService, hasher PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		hasher:   hasher,
	}
}

// Register は新規ユーザーを作成し、トークンの組を発行する。
// メールアドレスが登録済みの場合はEmailConflictエラーを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*TokenPair, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := model.CheckLength("name", *in.Name, model.MaxTextLength); err != nil {
			return nil, err
		}
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailConflictError()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         model.RoleUser,
	}
	// 同時登録の競合はリポジトリの一意制約違反でEmailConflictになる
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("new user registered",
		slog.Int64("user_id", user.ID),
	)

	return s.issuePair(user.ID)
}

// Login はメールアドレスとパスワードを照合し、トークンの組を発行する。
// ユーザーが存在しない場合とパスワード不一致の場合は同じInvalidCredentialエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialError()
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, model.NewInvalidCredentialError()
	}

	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return s.issuePair(user.ID)
}

// Refresh はリフレッシュトークンを検証し、新しいトークンの組を発行する。
// ユーザーが削除済みの場合はInvalidCredentialエラーを返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.tokens.Verify(refreshToken, ClassRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialError()
	}

	return s.issuePair(user.ID)
}

// issuePair はアクセストークンとリフレッシュトークンを発行する。
func (s *Service) issuePair(userID int64) (*TokenPair, error) {
	access, _, err := s.tokens.Issue(userID, ClassAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, _, err := s.tokens.Issue(userID, ClassRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// NormalizeEmail はメールアドレスの形式を検証し、小文字化して返す。
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email is invalid")
	}
	if err := model.CheckLength("email", email, model.MaxTextLength); err != nil {
		return "", err
	}
	return strings.ToLower(email), nil
}
