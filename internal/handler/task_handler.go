package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// タスクの所有権は所属プロジェクトの所有者で判定され、他ユーザーのタスクはTaskNotFoundになる。
type TaskServiceInterface interface {
	List(ctx context.Context, identity model.Identity, projectID int64, page model.Page) ([]*model.Task, error)
	Create(ctx context.Context, identity model.Identity, projectID int64, in task.CreateInput) (*model.Task, error)
	Get(ctx context.Context, identity model.Identity, taskID int64, include task.Include) (*task.Detail, error)
	Update(ctx context.Context, identity model.Identity, taskID int64, patch model.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, identity model.Identity, taskID int64) error
}

// APIVersion はタスクAPIの版を表す。
type APIVersion int

const (
	// APIv1 は見積時間を扱わない版。
	APIv1 APIVersion = 1
	// APIv2 はestimated_time_minutesを入出力に含む版。
	APIv2 APIVersion = 2
)

// TaskHandler はタスク管理のHTTPハンドラー。
// v1とv2は同じサービスを共有し、入出力の項目だけが異なる。
type TaskHandler struct {
	service TaskServiceInterface
	version APIVersion
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, version APIVersion) *TaskHandler {
	return &TaskHandler{service: service, version: version}
}

// taskResponse はv1のタスクAPIレスポンス。
type taskResponse struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	AssigneeID  *int64  `json:"assignee_id"`
	Status      string  `json:"status"`
	Priority    int     `json:"priority"`
	DueDate     *string `json:"due_date"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// taskV2Response はv2のタスクAPIレスポンス。
type taskV2Response struct {
	taskResponse
	EstimatedTimeMinutes *int `json:"estimated_time_minutes"`
}

// taskRelations はinclude指定で同梱する関連リソース。
type taskRelations struct {
	Project  *projectResponse   `json:"project,omitempty"`
	Comments *[]commentResponse `json:"comments,omitempty"`
}

type taskDetailResponse struct {
	taskResponse
	taskRelations
}

type taskV2DetailResponse struct {
	taskV2Response
	taskRelations
}

type createTaskRequest struct {
	Title                string     `json:"title"`
	Description          *string    `json:"description"`
	AssigneeID           *int64     `json:"assignee_id"`
	DueDate              *time.Time `json:"due_date"`
	EstimatedTimeMinutes *int       `json:"estimated_time_minutes"`
}

type updateTaskRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	AssigneeID           *int64     `json:"assignee_id"`
	DueDate              *time.Time `json:"due_date"`
	Status               *string    `json:"status"`
	Priority             *int       `json:"priority"`
	EstimatedTimeMinutes *int       `json:"estimated_time_minutes"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		AssigneeID:  t.AssigneeID,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     formatTimePtr(t.DueDate),
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
}

// render はAPIの版に応じたレスポンスを返す。
func (h *TaskHandler) render(t *model.Task) any {
	if h.version == APIv2 {
		return taskV2Response{taskResponse: toTaskResponse(t), EstimatedTimeMinutes: t.EstimatedTimeMinutes}
	}
	return toTaskResponse(t)
}

func (h *TaskHandler) renderDetail(d *task.Detail) any {
	var rel taskRelations
	if d.Project != nil {
		p := toProjectResponse(d.Project)
		rel.Project = &p
	}
	if d.Comments != nil {
		c := toCommentResponses(d.Comments)
		rel.Comments = &c
	}

	if h.version == APIv2 {
		return taskV2DetailResponse{
			taskV2Response: taskV2Response{taskResponse: toTaskResponse(d.Task), EstimatedTimeMinutes: d.Task.EstimatedTimeMinutes},
			taskRelations:  rel,
		}
	}
	return taskDetailResponse{taskResponse: toTaskResponse(d.Task), taskRelations: rel}
}

// estimate はv1では見積時間の入力を無視する。
func (h *TaskHandler) estimate(v *int) *int {
	if h.version == APIv2 {
		return v
	}
	return nil
}

// List はプロジェクトのタスク一覧を返す。
// GET /api/v{1,2}/projects/{id}/tasks?limit=&offset=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id", model.NewProjectNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	tasks, err := h.service.List(r.Context(), identity, projectID, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]any, len(tasks))
	for i, t := range tasks {
		results[i] = h.render(t)
	}
	writeJSON(w, http.StatusOK, results)
}

// Create はプロジェクトにタスクを作成する。
// POST /api/v{1,2}/projects/{id}/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id", model.NewProjectNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	t, err := h.service.Create(r.Context(), identity, projectID, task.CreateInput{
		Title:                req.Title,
		Description:          req.Description,
		AssigneeID:           req.AssigneeID,
		DueDate:              req.DueDate,
		EstimatedTimeMinutes: h.estimate(req.EstimatedTimeMinutes),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.render(t))
}

// Get はタスク詳細を返す。includeでproject、commentsを同梱できる。
// GET /api/v{1,2}/tasks/{id}?include=project,comments
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	detail, err := h.service.Get(r.Context(), identity, taskID, task.ParseInclude(r.URL.Query().Get("include")))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.renderDetail(detail))
}

// Update はタスクを部分更新する。
// PATCH /api/v{1,2}/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	t, err := h.service.Update(r.Context(), identity, taskID, model.TaskPatch{
		Title:                req.Title,
		Description:          req.Description,
		AssigneeID:           req.AssigneeID,
		DueDate:              req.DueDate,
		Status:               req.Status,
		Priority:             req.Priority,
		EstimatedTimeMinutes: h.estimate(req.EstimatedTimeMinutes),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(t))
}

// Delete はタスクを削除する。
// DELETE /api/v{1,2}/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	taskID, err := pathID(r, "id", model.NewTaskNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity, taskID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
