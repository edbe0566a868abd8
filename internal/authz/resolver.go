package authz

import (
	"context"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// OwnershipFacts は所有関係の判定に必要なレコードを取得するインターフェース。
// 見つからない場合は(nil, nil)を返す。
type OwnershipFacts interface {
	ProjectByID(ctx context.Context, id int64) (*model.Project, error)
	TaskByID(ctx context.Context, id int64) (*model.Task, error)
}

// ProjectFinder はIDでプロジェクトを取得するインターフェース。
type ProjectFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Project, error)
}

// TaskFinder はIDでタスクを取得するインターフェース。
type TaskFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Task, error)
}

type repositoryFacts struct {
	projects ProjectFinder
	tasks    TaskFinder
}

func (f repositoryFacts) ProjectByID(ctx context.Context, id int64) (*model.Project, error) {
	return f.projects.FindByID(ctx, id)
}

func (f repositoryFacts) TaskByID(ctx context.Context, id int64) (*model.Task, error) {
	return f.tasks.FindByID(ctx, id)
}

// RepositoryFacts はプロジェクト・タスクのリポジトリをOwnershipFactsとして扱う。
func RepositoryFacts(projects ProjectFinder, tasks TaskFinder) OwnershipFacts {
	return repositoryFacts{projects: projects, tasks: tasks}
}

// Resolver はレコードを取得して所有関係を判定する。
type Resolver struct {
	facts OwnershipFacts
}

// NewResolver はResolverを生成する。
func NewResolver(facts OwnershipFacts) *Resolver {
	return &Resolver{facts: facts}
}

// ProjectFor はidentityが所有するプロジェクトを返す。
// 存在しない、または所有していない場合はProjectNotFoundエラーを返す。
func (r *Resolver) ProjectFor(ctx context.Context, identity model.Identity, projectID int64) (*model.Project, error) {
	project, err := r.facts.ProjectByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}
	if err := CheckOwnsProject(identity, project); err != nil {
		return nil, err
	}
	return project, nil
}

// TaskFor はidentityが所属プロジェクト経由で所有するタスクとそのプロジェクトを返す。
// 存在しない、または所有していない場合はTaskNotFoundエラーを返す。
func (r *Resolver) TaskFor(ctx context.Context, identity model.Identity, taskID int64) (*model.Task, *model.Project, error) {
	task, err := r.facts.TaskByID(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve task: %w", err)
	}
	if task == nil {
		return nil, nil, model.NewTaskNotFoundError()
	}

	project, err := r.facts.ProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve project of task: %w", err)
	}
	if err := CheckOwnsTaskViaProject(identity, task, project); err != nil {
		return nil, nil, err
	}
	return task, project, nil
}
