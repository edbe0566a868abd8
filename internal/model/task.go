package model

import "time"

const (
	// TaskStatusOpen は作成直後のタスク状態。
	TaskStatusOpen = "open"
	// DefaultTaskPriority はタスク作成時のデフォルト優先度。
	DefaultTaskPriority = 3
)

// Task はプロジェクトに属するタスクを表す。
type Task struct {
	ID                   int64
	ProjectID            int64
	Title                string
	Description          *string
	AssigneeID           *int64
	Status               string
	Priority             int
	DueDate              *time.Time
	EstimatedTimeMinutes *int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TaskPatch はタスク更新で指定されたフィールドのみを保持する。
type TaskPatch struct {
	Title                *string
	Description          *string
	AssigneeID           *int64
	DueDate              *time.Time
	Status               *string
	Priority             *int
	EstimatedTimeMinutes *int
}

// Apply はパッチの指定フィールドをタスクに反映する。
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = p.Description
	}
	if p.AssigneeID != nil {
		t.AssigneeID = p.AssigneeID
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.EstimatedTimeMinutes != nil {
		t.EstimatedTimeMinutes = p.EstimatedTimeMinutes
	}
}
