package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/role"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ChangeStatus(ctx context.Context, actorID, userID string, target model.UserStatus) (*model.User, error)
	SetRoles(ctx context.Context, actorID, userID string, tags []string) (*model.User, error)
	// DeductPoints は残高が不足する場合にconflictを返す。
	DeductPoints(ctx context.Context, actorID, userID string, amount int) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type setRolesRequest struct {
	Roles []string `json:"roles"`
}

type deductPointsRequest struct {
	Amount int `json:"amount"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Roles          []string `json:"roles"`
	PrimaryRole    string   `json:"primary_role"`
	Status         string   `json:"status"`
	Points         int      `json:"points"`
	CompletedTasks int      `json:"completed_tasks"`
}

// ChangeStatus はアカウント状態を変更する。
// PUT /api/users/{id}/status
func (h *UserHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req changeStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.ChangeStatus(r.Context(), actorID, chi.URLParam(r, "id"), model.UserStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// SetRoles はロールを置き換える。
// PUT /api/users/{id}/roles
func (h *UserHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req setRolesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.SetRoles(r.Context(), actorID, chi.URLParam(r, "id"), req.Roles)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// DeductPoints はポイントを減算する。
// POST /api/users/{id}/points/deduct
func (h *UserHandler) DeductPoints(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req deductPointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.DeductPoints(r.Context(), actorID, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

func toUserResponse(u *model.User) userResponse {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return userResponse{
		ID:             u.ID,
		Name:           u.Name,
		Roles:          roles,
		PrimaryRole:    string(role.PrimaryRole(u.Roles)),
		Status:         string(u.Status),
		Points:         u.Points,
		CompletedTasks: u.CompletedTasks,
	}
}
