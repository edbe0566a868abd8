package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	List(ctx context.Context, identity model.Identity, taskID int64, page model.Page) ([]*model.Comment, error)
	Create(ctx context.Context, identity model.Identity, taskID int64, body string) (*model.Comment, error)
	// Update と Delete はコメントの投稿者のみ実行できる。
	Update(ctx context.Context, identity model.Identity, taskID, commentID int64, body *string) (*model.Comment, error)
	Delete(ctx context.Context, identity model.Identity, taskID, commentID int64) error
}

// CommentHandler はタスクへのコメントのHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	AuthorID  int64  `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type createCommentRequest struct {
	Body string `json:"body"`
}

type updateCommentRequest struct {
	Body *string `json:"body"`
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		TaskID:    c.TaskID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toCommentResponses(comments []*model.Comment) []commentResponse {
	results := make([]commentResponse, len(comments))
	for i, c := range comments {
		results[i] = toCommentResponse(c)
	}
	return results
}

// List はタスクのコメント一覧を返す。
// GET /api/v1/tasks/{id}/comments?limit=&offset=
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	comments, err := h.service.List(r.Context(), identity, taskID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentResponses(comments))
}

// Create はタスクにコメントを投稿する。
// POST /api/v1/tasks/{id}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	c, err := h.service.Create(r.Context(), identity, taskID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// Update はコメント本文を更新する。
// PATCH /api/v1/tasks/{id}/comments/{comment_id}
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, commentID, err := commentPath(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	c, err := h.service.Update(r.Context(), identity, taskID, commentID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentResponse(c))
}

// Delete はコメントを削除する。
// DELETE /api/v1/tasks/{id}/comments/{comment_id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, commentID, err := commentPath(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity, taskID, commentID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func commentPath(r *http.Request) (int64, int64, error) {
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		return 0, 0, err
	}
	commentID, err := pathID(r, "comment_id", model.NewCommentNotFoundError)
	if err != nil {
		return 0, 0, err
	}
	return taskID, commentID, nil
}
