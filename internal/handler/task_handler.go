package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	Create(ctx context.Context, actorID string, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, actorID, taskID string, in task.UpdateInput) (*model.Task, error)
	Assign(ctx context.Context, actorID, taskID, assigneeID string) (*model.Task, error)
	Start(ctx context.Context, actorID, taskID string) (*model.Task, error)
	SubmitForReview(ctx context.Context, actorID, taskID string) (*model.Task, error)
	// Approve と Complete はdoneへの遷移とポイント付与を1トランザクションで行う。
	Approve(ctx context.Context, approverID, taskID string) (*task.Completion, error)
	Reject(ctx context.Context, approverID, taskID, reason string) (*model.Task, error)
	Complete(ctx context.Context, actorID, taskID string) (*task.Completion, error)
}

// TaskHandler はタスクワークフローのHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Visibility  string     `json:"visibility"`
	ProjectID   *string    `json:"project_id"`
	AssigneeID  *string    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	Points      int        `json:"points"`
}

// updateTaskRequest はタスク更新リクエストのボディ。省略したフィールドは変更しない。
type updateTaskRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Priority     *string    `json:"priority"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	Points       *int       `json:"points"`
}

type assignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type rejectTaskRequest struct {
	Reason string `json:"reason"`
}

// taskResponse はタスク情報のAPIレスポンス。
type taskResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	Visibility      string     `json:"visibility"`
	AssigneeID      *string    `json:"assignee_id"`
	ProjectID       *string    `json:"project_id"`
	CreatedBy       string     `json:"created_by"`
	DueDate         *time.Time `json:"due_date"`
	Points          int        `json:"points"`
	Completed       bool       `json:"completed"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// awardResponse は完了時のポイント内訳。
type awardResponse struct {
	Points   int `json:"points"`
	Penalty  int `json:"penalty"`
	DaysLate int `json:"days_late"`
	Net      int `json:"net"`
}

// completionResponse はApprove/Completeのレスポンス。
type completionResponse struct {
	Task       taskResponse  `json:"task"`
	Award      awardResponse `json:"award"`
	AssigneeID string        `json:"assignee_id"`
	Balance    int           `json:"balance"`
}

// Create はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Create(r.Context(), userID, task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    model.TaskPriority(req.Priority),
		Visibility:  model.TaskVisibility(req.Visibility),
		ProjectID:   req.ProjectID,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		Points:      req.Points,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Update はタスクの内容を更新する。
// PATCH /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := task.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		Points:       req.Points,
	}
	if req.Priority != nil {
		p := model.TaskPriority(*req.Priority)
		in.Priority = &p
	}

	t, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Assign は担当者を設定する。
// POST /api/tasks/{id}/assign
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req assignTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Assign(r.Context(), userID, chi.URLParam(r, "id"), req.AssigneeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Start は作業を開始する。
// POST /api/tasks/{id}/start
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

// Submit はレビューに提出する。
// POST /api/tasks/{id}/submit
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.SubmitForReview)
}

// Reject はレビュー中のタスクを差し戻す。
// POST /api/tasks/{id}/reject
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req rejectTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.Reject(r.Context(), userID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Approve はレビュー中のタスクを承認して完了にする。
// POST /api/tasks/{id}/approve
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.completion(w, r, h.service.Approve)
}

// Complete はタスクを直接完了にする。
// POST /api/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.completion(w, r, h.service.Complete)
}

func (h *TaskHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, taskID string) (*model.Task, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	t, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (h *TaskHandler) completion(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, taskID string) (*task.Completion, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	c, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		Task: toTaskResponse(c.Task),
		Award: awardResponse{
			Points:   c.Award.Points,
			Penalty:  c.Award.Penalty,
			DaysLate: c.Award.DaysLate,
			Net:      c.Award.Net,
		},
		AssigneeID: c.AssigneeID,
		Balance:    c.Balance,
	})
}

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Priority:        string(t.Priority),
		Visibility:      string(t.Visibility),
		AssigneeID:      t.AssigneeID,
		ProjectID:       t.ProjectID,
		CreatedBy:       t.CreatedBy,
		DueDate:         t.DueDate,
		Points:          t.Points,
		Completed:       t.Completed,
		RejectionReason: t.RejectionReason,
		CompletedAt:     t.CompletedAt,
		ApprovedBy:      t.ApprovedBy,
		ApprovedAt:      t.ApprovedAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}
