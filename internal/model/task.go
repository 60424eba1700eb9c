package model

import "time"

// TaskStatus はタスクのワークフロー状態を表す。
type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "to-do"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusInReview   TaskStatus = "in-review"
	TaskStatusDone       TaskStatus = "done"
	// TaskStatusAdjust はレビューで差し戻された状態。
	TaskStatusAdjust TaskStatus = "adjust"
)

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// Valid は定義済みの優先度かを返す。
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// TaskVisibility はタスクの公開範囲を表す。
type TaskVisibility string

const (
	TaskVisibilityPublic    TaskVisibility = "public"
	TaskVisibilityDelegated TaskVisibility = "delegated"
	// TaskVisibilityGlobal はプロジェクトに属さないグローバルクエスト。
	TaskVisibilityGlobal TaskVisibility = "global"
)

// Valid は定義済みの公開範囲かを返す。
func (v TaskVisibility) Valid() bool {
	switch v {
	case TaskVisibilityPublic, TaskVisibilityDelegated, TaskVisibilityGlobal:
		return true
	}
	return false
}

// Task は割り当て・レビュー・完了の対象となる作業単位を表す。
// Completed は常に Status == TaskStatusDone と一致する。直接代入せず SetStatus を使うこと。
type Task struct {
	ID              string
	Title           string
	Description     string
	Status          TaskStatus
	Priority        TaskPriority
	AssigneeID      *string
	ProjectID       *string
	CreatedBy       string
	DueDate         *time.Time
	Points          int
	Completed       bool
	Visibility      TaskVisibility
	RejectionReason string
	CompletedAt     *time.Time
	ApprovedBy      *string
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetStatus はステータスを更新し、Completedフラグを同期する。
func (t *Task) SetStatus(s TaskStatus) {
	t.Status = s
	t.Completed = s == TaskStatusDone
}

// IsGlobal はプロジェクトに属さないグローバルクエストかを返す。
func (t *Task) IsGlobal() bool {
	return t.ProjectID == nil
}

// IsAssignedTo は指定ユーザーが担当者かを返す。
func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}
