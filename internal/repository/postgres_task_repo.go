package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// assigneeConstraint はtasks.assignee_idの外部キー制約名。
const assigneeConstraint = "tasks_assignee_id_fkey"

func unknownAssigneeError() error {
	return model.NewValidationError("assignee_id does not reference an existing user")
}

const taskColumns = `id, project_id, title, description, assignee_id, status, priority,
	due_date, estimated_time_minutes, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*model.Task, error) {
	t := &model.Task{}
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.AssigneeID, &t.Status, &t.Priority,
		&t.DueDate, &t.EstimatedTimeMinutes, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	return t, nil
}

// ListByProject はプロジェクトのタスク一覧をID昇順で返す。
func (r *PostgresTaskRepo) ListByProject(ctx context.Context, projectID int64, page model.Page) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`,
		projectID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("タスクのスキャンに失敗しました: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の読み取りに失敗しました: %w", err)
	}
	return tasks, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, t *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (project_id, title, description, assignee_id, status, priority, due_date, estimated_time_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		t.ProjectID, t.Title, t.Description, t.AssigneeID, t.Status, t.Priority, t.DueDate, t.EstimatedTimeMinutes,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isForeignKeyViolation(err, assigneeConstraint) {
		return unknownAssigneeError()
	}
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタスクを上書き更新し、updated_atを現在時刻にする。
func (r *PostgresTaskRepo) Update(ctx context.Context, t *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET title = $1, description = $2, assignee_id = $3, status = $4, priority = $5,
		     due_date = $6, estimated_time_minutes = $7, updated_at = NOW()
		 WHERE id = $8
		 RETURNING updated_at`,
		t.Title, t.Description, t.AssigneeID, t.Status, t.Priority, t.DueDate, t.EstimatedTimeMinutes, t.ID,
	).Scan(&t.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %d", t.ID)
	}
	if isForeignKeyViolation(err, assigneeConstraint) {
		return unknownAssigneeError()
	}
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return expectOneRow(result, "task", id)
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
