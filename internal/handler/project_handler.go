package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/project"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
// 他ユーザーのプロジェクトはすべてProjectNotFoundとして扱われる。
type ProjectServiceInterface interface {
	List(ctx context.Context, identity model.Identity, page model.Page) ([]*model.Project, error)
	Create(ctx context.Context, identity model.Identity, in project.CreateInput) (*model.Project, error)
	Get(ctx context.Context, identity model.Identity, projectID int64) (*model.Project, error)
	Update(ctx context.Context, identity model.Identity, projectID int64, patch model.ProjectPatch) (*model.Project, error)
	Delete(ctx context.Context, identity model.Identity, projectID int64) error
}

// ProjectHandler はプロジェクト管理のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// projectResponse はプロジェクト情報のAPIレスポンス。
type projectResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	OwnerID     int64   `json:"owner_id"`
	CreatedAt   string  `json:"created_at"`
}

type createProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

// List は認証ユーザーが所有するプロジェクト一覧を返す。
// GET /api/v1/projects?limit=&offset=
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	projects, err := h.service.List(r.Context(), identity, page)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]projectResponse, len(projects))
	for i, p := range projects {
		results[i] = toProjectResponse(p)
	}
	writeJSON(w, http.StatusOK, results)
}

// Create はプロジェクトを作成する。
// POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.service.Create(r.Context(), identity, project.CreateInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// Get はプロジェクト詳細を返す。
// GET /api/v1/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id", model.NewProjectNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.service.Get(r.Context(), identity, projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Update はプロジェクトを部分更新する。
// PATCH /api/v1/projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id", model.NewProjectNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.service.Update(r.Context(), identity, projectID, model.ProjectPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Delete はプロジェクトを削除する。配下のタスクとコメントも削除される。
// DELETE /api/v1/projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	projectID, err := pathID(r, "id", model.NewProjectNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), identity, projectID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
