package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasktracker/internal/model"
)

// PostgresStatsRepo はPostgreSQLを使用した集計リポジトリ。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// Totals は各テーブルの総件数を1クエリで返す。
func (r *PostgresStatsRepo) Totals(ctx context.Context) (*model.Stats, error) {
	s := &model.Stats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM comments)`,
	).Scan(&s.TotalUsers, &s.TotalProjects, &s.TotalTasks, &s.TotalComments)
	if err != nil {
		return nil, fmt.Errorf("集計の取得に失敗しました: %w", err)
	}
	return s, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
