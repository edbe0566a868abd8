package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/tasktracker/internal/model"
)

var commentRowColumns = []string{"id", "task_id", "author_id", "body", "created_at"}

func TestPostgresCommentRepo_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCommentRepo(db)

	mock.ExpectQuery(`FROM comments WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(commentRowColumns).
			AddRow(int64(5), int64(100), int64(1), "looks good", time.Now()))
	mock.ExpectQuery(`FROM comments WHERE id = \$1`).
		WithArgs(int64(6)).
		WillReturnError(sql.ErrNoRows)

	c, err := repo.FindByID(context.Background(), 5)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if c.TaskID != 100 || c.AuthorID != 1 || c.Body != "looks good" {
		t.Errorf("comment = %+v", c)
	}

	c, err = repo.FindByID(context.Background(), 6)
	if err != nil || c != nil {
		t.Errorf("FindByID(missing) = %v, %v", c, err)
	}
}

func TestPostgresCommentRepo_ListByTask(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCommentRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM comments WHERE task_id = \$1\s+ORDER BY created_at, id\s+LIMIT \$2 OFFSET \$3`).
		WithArgs(int64(100), nil, 0).
		WillReturnRows(sqlmock.NewRows(commentRowColumns).
			AddRow(int64(1), int64(100), int64(1), "first", now).
			AddRow(int64(2), int64(100), int64(2), "second", now))

	comments, err := repo.ListByTask(context.Background(), 100, model.Page{})
	if err != nil {
		t.Fatalf("ListByTask error: %v", err)
	}
	if len(comments) != 2 || comments[0].Body != "first" {
		t.Errorf("comments = %+v", comments)
	}
}

func TestPostgresCommentRepo_ListByTask_Paged(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCommentRepo(db)

	mock.ExpectQuery(`FROM comments WHERE task_id`).
		WithArgs(int64(100), 2, 4).
		WillReturnRows(sqlmock.NewRows(commentRowColumns))

	if _, err := repo.ListByTask(context.Background(), 100, model.Page{Limit: 2, Offset: 4}); err != nil {
		t.Fatalf("ListByTask error: %v", err)
	}
}

func TestPostgresCommentRepo_Mutations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresCommentRepo(db)

	mock.ExpectQuery(`INSERT INTO comments \(task_id, author_id, body\)`).
		WithArgs(int64(100), int64(1), "hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), time.Now()))
	mock.ExpectExec(`UPDATE comments SET body = \$1 WHERE id = \$2`).
		WithArgs("edited", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM comments WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	c := &model.Comment{TaskID: 100, AuthorID: 1, Body: "hello"}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if c.ID != 9 {
		t.Errorf("ID = %d, want 9", c.ID)
	}
	if err := repo.UpdateBody(ctx, 9, "edited"); err != nil {
		t.Errorf("UpdateBody error: %v", err)
	}
	if err := repo.DeleteByID(ctx, 9); err == nil {
		t.Error("expected error when no row deleted")
	}
}
