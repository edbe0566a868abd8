package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/tasktracker/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Me(ctx context.Context, identity model.Identity) (*model.User, error)
	Get(ctx context.Context, userID int64) (*model.User, error)
	// Update は本人のみ実行できる。メールアドレスの重複はEmailConflictになる。
	Update(ctx context.Context, identity model.Identity, userID int64, patch model.UserPatch) (*model.User, error)
	// Withdraw は本人のみ実行できる。所有するprojects、tasks、commentsも削除される。
	Withdraw(ctx context.Context, identity model.Identity, userID int64) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Name      *string `json:"name"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"created_at"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// Me は認証中のユーザー情報を返す。
// GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Get は指定ユーザーの情報を返す。
// GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id", model.NewUserNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Update はユーザー情報を部分更新する。
// PATCH /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id", model.NewUserNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Update(r.Context(), identity, userID, model.UserPatch{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/v1/users/{id}
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityOrUnauthorized(w, r)
	if !ok {
		return
	}
	userID, err := pathID(r, "id", model.NewUserNotFoundError)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Withdraw(r.Context(), identity, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
