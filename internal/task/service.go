// Package task はタスク管理のドメインロジックを提供する。
// タスクの所有権は所属プロジェクトの所有者を経由して判定する。
package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
	"github.com/hitoshi/tasktracker/internal/security"
)

// CreateInput はタスク作成の入力値。
type CreateInput struct {
	Title                string
	Description          *string
	AssigneeID           *int64
	DueDate              *time.Time
	EstimatedTimeMinutes *int
}

// Include はタスク取得時に同梱する関連リソースの指定。
type Include struct {
	Project  bool
	Comments bool
}

// ParseInclude はカンマ区切りのinclude指定を解析する。
// 未知の値は無視する。
func ParseInclude(raw string) Include {
	var inc Include
	for _, part := range strings.Split(raw, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "project":
			inc.Project = true
		case "comments":
			inc.Comments = true
		}
	}
	return inc
}

// Detail はタスクと、指定された関連リソースをまとめたもの。
type Detail struct {
	Task     *model.Task
	Project  *model.Project
	Comments []*model.Comment
}

// Service はタスク管理のサービス層。
type Service struct {
	taskRepo    repository.TaskRepository
	commentRepo repository.CommentRepository
	resolver    *authz.Resolver
	sanitizer   security.ContentSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	taskRepo repository.TaskRepository,
	commentRepo repository.CommentRepository,
	resolver *authz.Resolver,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		taskRepo:    taskRepo,
		commentRepo: commentRepo,
		resolver:    resolver,
		sanitizer:   sanitizer,
	}
}

// List は所有するプロジェクトのタスク一覧を返す。
func (s *Service) List(ctx context.Context, identity model.Identity, projectID int64, page model.Page) ([]*model.Task, error) {
	if _, err := s.resolver.ProjectFor(ctx, identity, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListByProject(ctx, projectID, page)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// Create は所有するプロジェクトにタスクを作成する。
// statusは"open"、priorityは3で作成される。
func (s *Service) Create(ctx context.Context, identity model.Identity, projectID int64, in CreateInput) (*model.Task, error) {
	if _, err := s.resolver.ProjectFor(ctx, identity, projectID); err != nil {
		return nil, err
	}

	title := s.sanitizer.PlainText(in.Title)
	if title == "" {
		return nil, model.NewValidationError("title is required")
	}
	if err := model.CheckLength("title", title, model.MaxTextLength); err != nil {
		return nil, err
	}
	if err := validateEstimate(in.EstimatedTimeMinutes); err != nil {
		return nil, err
	}

	t := &model.Task{
		ProjectID:            projectID,
		Title:                title,
		Description:          security.PlainTextPtr(s.sanitizer, in.Description),
		AssigneeID:           in.AssigneeID,
		Status:               model.TaskStatusOpen,
		Priority:             model.DefaultTaskPriority,
		DueDate:              in.DueDate,
		EstimatedTimeMinutes: in.EstimatedTimeMinutes,
	}
	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return t, nil
}

// Get はタスクを取得し、includeの指定に応じてプロジェクトとコメントを同梱する。
func (s *Service) Get(ctx context.Context, identity model.Identity, taskID int64, include Include) (*Detail, error) {
	t, p, err := s.resolver.TaskFor(ctx, identity, taskID)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Task: t}
	if include.Project {
		detail.Project = p
	}
	if include.Comments {
		comments, err := s.commentRepo.ListByTask(ctx, taskID, model.Page{})
		if err != nil {
			return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
		}
		if comments == nil {
			comments = []*model.Comment{}
		}
		detail.Comments = comments
	}
	return detail, nil
}

// Update はタスクを部分更新する。
func (s *Service) Update(ctx context.Context, identity model.Identity, taskID int64, patch model.TaskPatch) (*model.Task, error) {
	t, _, err := s.resolver.TaskFor(ctx, identity, taskID)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		title := s.sanitizer.PlainText(*patch.Title)
		if title == "" {
			return nil, model.NewValidationError("title must not be empty")
		}
		if err := model.CheckLength("title", title, model.MaxTextLength); err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Status != nil {
		if strings.TrimSpace(*patch.Status) == "" {
			return nil, model.NewValidationError("status must not be empty")
		}
		if err := model.CheckLength("status", *patch.Status, model.MaxStatusLength); err != nil {
			return nil, err
		}
	}
	if err := validateEstimate(patch.EstimatedTimeMinutes); err != nil {
		return nil, err
	}
	patch.Description = security.PlainTextPtr(s.sanitizer, patch.Description)
	patch.Apply(t)

	if err := s.taskRepo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return t, nil
}

// Delete はタスクを削除する。コメントはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, identity model.Identity, taskID int64) error {
	if _, _, err := s.resolver.TaskFor(ctx, identity, taskID); err != nil {
		return err
	}
	if err := s.taskRepo.DeleteByID(ctx, taskID); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

func validateEstimate(minutes *int) error {
	if minutes != nil && *minutes < 0 {
		return model.NewValidationError("estimated_time_minutes must not be negative")
	}
	return nil
}
