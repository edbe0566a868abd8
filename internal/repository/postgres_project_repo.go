package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, owner_id, created_at
		 FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListByOwner は所有者のプロジェクト一覧をID昇順で返す。
func (r *PostgresProjectRepo) ListByOwner(ctx context.Context, ownerID int64, page model.Page) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, owner_id, created_at
		 FROM projects WHERE owner_id = $1
		 ORDER BY id
		 LIMIT $2 OFFSET $3`,
		ownerID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	projects := make([]*model.Project, 0)
	for rows.Next() {
		p := &model.Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("プロジェクトのスキャンに失敗しました: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の読み取りに失敗しました: %w", err)
	}
	return projects, nil
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO projects (name, description, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		p.Name, p.Description, p.OwnerID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はプロジェクトの名前と説明を更新する。
func (r *PostgresProjectRepo) Update(ctx context.Context, p *model.Project) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = $1, description = $2 WHERE id = $3`,
		p.Name, p.Description, p.ID,
	)
	if err != nil {
		return fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "project", p.ID)
}

// DeleteByID は指定IDのプロジェクトを削除する。
func (r *PostgresProjectRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}
	return expectOneRow(result, "project", id)
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
