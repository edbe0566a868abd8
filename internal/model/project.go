package model

import "time"

// Project はユーザーが所有するプロジェクトを表す。
// タスクの所有権はプロジェクトの所有者を経由して判定される。
type Project struct {
	ID          int64
	Name        string
	Description *string
	OwnerID     int64
	CreatedAt   time.Time
}

// ProjectPatch はプロジェクト更新で指定されたフィールドのみを保持する。
type ProjectPatch struct {
	Name        *string
	Description *string
}

// Page は一覧取得のページング指定。
type Page struct {
	Limit  int
	Offset int
}

const (
	// DefaultPageLimit は一覧取得のデフォルト件数。
	DefaultPageLimit = 10
	// MaxPageLimit は一覧取得の最大件数。
	MaxPageLimit = 100
)

// NewPage はクエリパラメータからPageを生成する。
// limitが0の場合はDefaultPageLimit、MaxPageLimitを超える場合はMaxPageLimitになる。
// 負の値はValidationエラーを返す。
func NewPage(limit, offset int) (Page, error) {
	if limit < 0 || offset < 0 {
		return Page{}, NewValidationError("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Limit: limit, Offset: offset}, nil
}
