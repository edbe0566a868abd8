// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tasktracker/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// メールアドレスが重複する場合はEmailConflictエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を更新する。
	// メールアドレスが他ユーザーと重複する場合はEmailConflictエラーを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 所有するprojects、tasks、commentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// ProjectRepository はプロジェクトデータの永続化インターフェース。
type ProjectRepository interface {
	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Project, error)

	// ListByOwner は所有者のプロジェクト一覧をID昇順で返す。
	ListByOwner(ctx context.Context, ownerID int64, page model.Page) ([]*model.Project, error)

	// Create はプロジェクトを作成し、採番されたIDと作成日時を設定する。
	Create(ctx context.Context, project *model.Project) error

	// Update はプロジェクトの名前と説明を更新する。
	Update(ctx context.Context, project *model.Project) error

	// DeleteByID は指定IDのプロジェクトを削除する。配下のタスクはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Task, error)

	// ListByProject はプロジェクトのタスク一覧をID昇順で返す。
	ListByProject(ctx context.Context, projectID int64, page model.Page) ([]*model.Task, error)

	// Create はタスクを作成し、採番されたIDと作成・更新日時を設定する。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを上書き更新し、更新日時を設定する。
	Update(ctx context.Context, task *model.Task) error

	// DeleteByID は指定IDのタスクを削除する。配下のコメントはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Comment, error)

	// ListByTask はタスクのコメント一覧を作成日時昇順で返す。
	// page.Limitが0の場合は全件を返す。
	ListByTask(ctx context.Context, taskID int64, page model.Page) ([]*model.Comment, error)

	// Create はコメントを作成し、採番されたIDと作成日時を設定する。
	Create(ctx context.Context, comment *model.Comment) error

	// UpdateBody はコメント本文を更新する。
	UpdateBody(ctx context.Context, id int64, body string) error

	// DeleteByID は指定IDのコメントを削除する。
	DeleteByID(ctx context.Context, id int64) error
}

// StatsRepository は内部API向け集計の読み取りインターフェース。
type StatsRepository interface {
	// Totals は各テーブルの総件数を返す。
	Totals(ctx context.Context) (*model.Stats, error)
}
