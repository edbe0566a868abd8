package model

import "time"

// Comment はタスクへのコメントを表す。
// 編集・削除はAuthorIDのユーザーのみが行える。
type Comment struct {
	ID        int64
	TaskID    int64
	AuthorID  int64
	Body      string
	CreatedAt time.Time
}

// Stats は内部API向けの集計値。
type Stats struct {
	TotalUsers    int64
	TotalProjects int64
	TotalTasks    int64
	TotalComments int64
}
