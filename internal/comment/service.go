// Package comment はタスクへのコメントのドメインロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
	"github.com/hitoshi/tasktracker/internal/security"
)

// Service はコメント管理のサービス層。
// 参照と投稿はタスクの所有者、編集と削除はコメントの投稿者に限定される。
type Service struct {
	commentRepo repository.CommentRepository
	resolver    *authz.Resolver
	sanitizer   security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	commentRepo repository.CommentRepository,
	resolver *authz.Resolver,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		commentRepo: commentRepo,
		resolver:    resolver,
		sanitizer:   sanitizer,
	}
}

// List はタスクのコメント一覧を返す。
func (s *Service) List(ctx context.Context, identity model.Identity, taskID int64, page model.Page) ([]*model.Comment, error) {
	if _, _, err := s.resolver.TaskFor(ctx, identity, taskID); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.ListByTask(ctx, taskID, page)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// Create はタスクにコメントを投稿する。
func (s *Service) Create(ctx context.Context, identity model.Identity, taskID int64, body string) (*model.Comment, error) {
	if _, _, err := s.resolver.TaskFor(ctx, identity, taskID); err != nil {
		return nil, err
	}

	clean, err := s.cleanBody(body)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		TaskID:   taskID,
		AuthorID: identity.ID,
		Body:     clean,
	}
	if err := s.commentRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return c, nil
}

// Update はコメント本文を更新する。bodyがnilの場合は変更しない。
func (s *Service) Update(ctx context.Context, identity model.Identity, taskID, commentID int64, body *string) (*model.Comment, error) {
	c, err := s.authoredComment(ctx, identity, taskID, commentID)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return c, nil
	}

	clean, err := s.cleanBody(*body)
	if err != nil {
		return nil, err
	}
	if err := s.commentRepo.UpdateBody(ctx, commentID, clean); err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	c.Body = clean
	return c, nil
}

// Delete はコメントを削除する。
func (s *Service) Delete(ctx context.Context, identity model.Identity, taskID, commentID int64) error {
	if _, err := s.authoredComment(ctx, identity, taskID, commentID); err != nil {
		return err
	}
	if err := s.commentRepo.DeleteByID(ctx, commentID); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// authoredComment はタスクの所有とコメントの投稿者を確認してコメントを返す。
// 別タスクのコメントはCommentNotFound、投稿者以外はForbiddenになる。
func (s *Service) authoredComment(ctx context.Context, identity model.Identity, taskID, commentID int64) (*model.Comment, error) {
	if _, _, err := s.resolver.TaskFor(ctx, identity, taskID); err != nil {
		return nil, err
	}

	c, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil || c.TaskID != taskID {
		return nil, model.NewCommentNotFoundError()
	}
	if err := authz.CheckIsCommentAuthor(identity, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) cleanBody(body string) (string, error) {
	clean := strings.TrimSpace(s.sanitizer.RichText(body))
	if clean == "" {
		return "", model.NewValidationError("body is required")
	}
	return clean, nil
}
