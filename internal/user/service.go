// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tasktracker/internal/auth"
	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
)

// Service はユーザー管理のサービス層。
// 参照は認証済みユーザーなら誰でも可能、変更と退会は本人のみ行える。
type Service struct {
	userRepo repository.UserRepository
	hasher   auth.PasswordHasher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher auth.PasswordHasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

// Me は認証主体のユーザー情報を返す。
func (s *Service) Me(ctx context.Context, identity model.Identity) (*model.User, error) {
	return s.Get(ctx, identity.ID)
}

// Get は指定IDのユーザーを返す。見つからない場合はUserNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Update はユーザー情報を部分更新する。
// 本人以外はForbidden、メールアドレスの重複はEmailConflictエラーになる。
// パスワードが指定された場合はハッシュ化して保存する。
func (s *Service) Update(ctx context.Context, identity model.Identity, userID int64, patch model.UserPatch) (*model.User, error) {
	if err := authz.CheckIsSelf(identity, userID); err != nil {
		return nil, err
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email, err := auth.NormalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			existing, err := s.userRepo.FindByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
			}
			if existing != nil && existing.ID != user.ID {
				return nil, model.NewEmailConflictError()
			}
		}
		user.Email = email
	}
	if patch.Name != nil {
		if err := model.CheckLength("name", *patch.Name, model.MaxTextLength); err != nil {
			return nil, err
		}
		user.Name = patch.Name
	}
	if patch.Password != nil {
		if err := auth.ValidatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 所有するprojects（配下のtasks含む）と投稿したcommentsはCASCADE削除される。
func (s *Service) Withdraw(ctx context.Context, identity model.Identity, userID int64) error {
	if err := authz.CheckIsSelf(identity, userID); err != nil {
		return err
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.Int64("user_id", userID),
	)
	return nil
}
