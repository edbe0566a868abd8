package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id int64) (*model.Comment, error) {
	c := &model.Comment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, task_id, author_id, body, created_at FROM comments WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}
	return c, nil
}

// ListByTask はタスクのコメント一覧を作成日時昇順で返す。
// page.Limitが0の場合は全件を返す。
func (r *PostgresCommentRepo) ListByTask(ctx context.Context, taskID int64, page model.Page) ([]*model.Comment, error) {
	var limit any
	if page.Limit > 0 {
		limit = page.Limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, task_id, author_id, body, created_at
		 FROM comments WHERE task_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		taskID, limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]*model.Comment, 0)
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO comments (task_id, author_id, body)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		c.TaskID, c.AuthorID, c.Body,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// UpdateBody はコメント本文を更新する。
func (r *PostgresCommentRepo) UpdateBody(ctx context.Context, id int64, body string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET body = $1 WHERE id = $2`,
		body, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return expectOneRow(result, "comment", id)
}

// DeleteByID は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return expectOneRow(result, "comment", id)
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
