// Package project はプロジェクト管理のドメインロジックを提供する。
// 全ての操作は所有者に限定され、他ユーザーのプロジェクトは存在しないものとして扱う。
package project

import (
	"context"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
	"github.com/hitoshi/tasktracker/internal/security"
)

// CreateInput はプロジェクト作成の入力値。
type CreateInput struct {
	Name        string
	Description *string
}

// Service はプロジェクト管理のサービス層。
type Service struct {
	projectRepo repository.ProjectRepository
	resolver    *authz.Resolver
	sanitizer   security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	resolver *authz.Resolver,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		projectRepo: projectRepo,
		resolver:    resolver,
		sanitizer:   sanitizer,
	}
}

// List は認証主体が所有するプロジェクト一覧を返す。
func (s *Service) List(ctx context.Context, identity model.Identity, page model.Page) ([]*model.Project, error) {
	projects, err := s.projectRepo.ListByOwner(ctx, identity.ID, page)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	return projects, nil
}

// Create は認証主体を所有者としてプロジェクトを作成する。
func (s *Service) Create(ctx context.Context, identity model.Identity, in CreateInput) (*model.Project, error) {
	name := s.sanitizer.PlainText(in.Name)
	if name == "" {
		return nil, model.NewValidationError("name is required")
	}
	if err := model.CheckLength("name", name, model.MaxTextLength); err != nil {
		return nil, err
	}

	p := &model.Project{
		Name:        name,
		Description: security.PlainTextPtr(s.sanitizer, in.Description),
		OwnerID:     identity.ID,
	}
	if err := s.projectRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
	}
	return p, nil
}

// Get は所有するプロジェクトを返す。
func (s *Service) Get(ctx context.Context, identity model.Identity, projectID int64) (*model.Project, error) {
	return s.resolver.ProjectFor(ctx, identity, projectID)
}

// Update は所有するプロジェクトを部分更新する。
func (s *Service) Update(ctx context.Context, identity model.Identity, projectID int64, patch model.ProjectPatch) (*model.Project, error) {
	p, err := s.resolver.ProjectFor(ctx, identity, projectID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := s.sanitizer.PlainText(*patch.Name)
		if name == "" {
			return nil, model.NewValidationError("name must not be empty")
		}
		if err := model.CheckLength("name", name, model.MaxTextLength); err != nil {
			return nil, err
		}
		p.Name = name
	}
	if patch.Description != nil {
		p.Description = security.PlainTextPtr(s.sanitizer, patch.Description)
	}

	if err := s.projectRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
	}
	return p, nil
}

// Delete は所有するプロジェクトを削除する。配下のタスクはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, identity model.Identity, projectID int64) error {
	if _, err := s.resolver.ProjectFor(ctx, identity, projectID); err != nil {
		return err
	}
	if err := s.projectRepo.DeleteByID(ctx, projectID); err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}
	return nil
}
