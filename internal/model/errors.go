package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Category はエラーの種別（validation, forbidden, conflict, not_found, auth, system）。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryForbidden  = "forbidden"
	CategoryConflict   = "conflict"
	CategoryNotFound   = "not_found"
	CategoryAuth       = "auth"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeEmptyRoles         = "EMPTY_ROLES"
	ErrCodeTitleRequired      = "TITLE_REQUIRED"
	ErrCodeNegativePoints     = "NEGATIVE_POINTS"
	ErrCodeInvalidPriority    = "INVALID_PRIORITY"
	ErrCodeInvalidVisibility  = "INVALID_VISIBILITY"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidUserStatus  = "INVALID_USER_STATUS"
	ErrCodeGlobalTaskAssignee = "GLOBAL_TASK_ASSIGNEE"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeIllegalTransition  = "ILLEGAL_TRANSITION"
	ErrCodeTaskAlreadyDone    = "TASK_ALREADY_DONE"
	ErrCodeSelfApproval       = "SELF_APPROVAL"
	ErrCodeNoAssignee         = "NO_ASSIGNEE"
	ErrCodeInsufficientPoints = "INSUFFICIENT_POINTS"
	ErrCodeBadgeAlreadyHeld   = "BADGE_ALREADY_HELD"
	ErrCodeBadgeInactive      = "BADGE_INACTIVE"
	ErrCodeAutomaticBadge     = "AUTOMATIC_BADGE"
	ErrCodeUserStatusConflict = "USER_STATUS_CONFLICT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeProjectNotFound    = "PROJECT_NOT_FOUND"
	ErrCodeBadgeNotFound      = "BADGE_NOT_FOUND"
	ErrCodeUserBadgeNotFound  = "USER_BADGE_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequestBody = "INVALID_REQUEST_BODY"
)

// HasCategory はerrがAPIErrorであり、指定カテゴリに属するかを返す。
func HasCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// --- validation ---

// NewInvalidRoleError は未知のロールタグのエラーを生成する。
func NewInvalidRoleError(tag string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", tag),
		Category: CategoryValidation,
		Action:   "coordinator, manager, laboratory_tech, project_manager, researcher, collaborator, volunteer のいずれかを指定してください。",
	}
}

// NewEmptyRolesError はロールが1つも指定されていない場合のエラーを生成する。
func NewEmptyRolesError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyRoles,
		Message:  "ロールを1つ以上指定してください。",
		Category: CategoryValidation,
		Action:   "ユーザーには少なくとも1つのロールが必要です。",
	}
}

// NewTitleRequiredError はタスクのタイトル未入力エラーを生成する。
func NewTitleRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTitleRequired,
		Message:  "タスクのタイトルは必須です。",
		Category: CategoryValidation,
		Action:   "タイトルを入力してください。",
	}
}

// NewNegativePointsError はタスクのポイントが負の場合のエラーを生成する。
func NewNegativePointsError(points int) *APIError {
	return &APIError{
		Code:     ErrCodeNegativePoints,
		Message:  fmt.Sprintf("ポイントに負の値は指定できません: %d", points),
		Category: CategoryValidation,
		Action:   "0以上の整数を指定してください。",
	}
}

// NewInvalidPriorityError は無効な優先度のエラーを生成する。
func NewInvalidPriorityError(p string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("無効な優先度です: %s", p),
		Category: CategoryValidation,
		Action:   "low, medium, high, urgent のいずれかを指定してください。",
	}
}

// NewInvalidVisibilityError は無効な公開範囲のエラーを生成する。
func NewInvalidVisibilityError(v string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVisibility,
		Message:  fmt.Sprintf("無効な公開範囲です: %s", v),
		Category: CategoryValidation,
		Action:   "public, delegated, global のいずれかを指定してください。",
	}
}

// NewInvalidAmountError はポイント操作の金額が不正な場合のエラーを生成する。
func NewInvalidAmountError(amount int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効なポイント数です: %d", amount),
		Category: CategoryValidation,
		Action:   "正の整数を指定してください。",
	}
}

// NewInvalidUserStatusError は未知のユーザー状態のエラーを生成する。
func NewInvalidUserStatusError(s string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUserStatus,
		Message:  fmt.Sprintf("無効なユーザー状態です: %s", s),
		Category: CategoryValidation,
		Action:   "pending, active, rejected, suspended, inactive のいずれかを指定してください。",
	}
}

// NewGlobalTaskAssigneeError はグローバルクエストに担当者を指定した場合のエラーを生成する。
func NewGlobalTaskAssigneeError() *APIError {
	return &APIError{
		Code:     ErrCodeGlobalTaskAssignee,
		Message:  "グローバルクエストには担当者を設定できません。",
		Category: CategoryValidation,
		Action:   "担当者を外すか、プロジェクトを指定してください。",
	}
}

// NewInvalidRequestBodyError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestBodyError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequestBody,
		Message:  "リクエストボディが不正です。",
		Category: CategoryValidation,
		Action:   "JSON形式で正しいフィールドを指定してください。",
	}
}

// --- forbidden ---

// NewForbiddenError は操作権限がない場合のエラーを生成する。
func NewForbiddenError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", operation),
		Category: CategoryForbidden,
		Action:   "必要なロールを持つユーザーに依頼してください。",
	}
}

// NewUnauthorizedError は認証情報がない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてください。",
	}
}

// --- conflict ---

// NewIllegalTransitionError は現在の状態から許可されない遷移のエラーを生成する。
func NewIllegalTransitionError(from TaskStatus, event string) *APIError {
	return &APIError{
		Code:     ErrCodeIllegalTransition,
		Message:  fmt.Sprintf("状態 %s のタスクに %s は実行できません。", from, event),
		Category: CategoryConflict,
		Action:   "タスクの現在の状態を確認してください。",
	}
}

// NewTaskAlreadyDoneError は完了済みタスクへの操作エラーを生成する。
func NewTaskAlreadyDoneError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskAlreadyDone,
		Message:  fmt.Sprintf("タスクは既に完了しています: %s", taskID),
		Category: CategoryConflict,
		Action:   "完了済みのタスクは変更できません。",
	}
}

// NewSelfApprovalError はプロジェクトリーダーが自身のタスクを完了・承認しようとした場合のエラーを生成する。
func NewSelfApprovalError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfApproval,
		Message:  "リードしているプロジェクト内の自分のタスクは自分で完了できません。",
		Category: CategoryConflict,
		Action:   "別のマネージャーまたはコーディネーターに承認を依頼してください。",
	}
}

// NewNoAssigneeError は担当者のいないタスクをレビューに出そうとした場合のエラーを生成する。
func NewNoAssigneeError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoAssignee,
		Message:  fmt.Sprintf("タスクに担当者が設定されていません: %s", taskID),
		Category: CategoryConflict,
		Action:   "先に担当者を割り当ててください。",
	}
}

// NewInsufficientPointsError は残高不足で減算できない場合のエラーを生成する。
func NewInsufficientPointsError(balance, amount int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientPoints,
		Message:  fmt.Sprintf("ポイントが不足しています（残高: %d, 減算: %d）", balance, amount),
		Category: CategoryConflict,
		Action:   "残高以下のポイントを指定してください。",
	}
}

// NewBadgeAlreadyHeldError は既に保持しているバッジを付与しようとした場合のエラーを生成する。
func NewBadgeAlreadyHeldError(badgeID string) *APIError {
	return &APIError{
		Code:     ErrCodeBadgeAlreadyHeld,
		Message:  fmt.Sprintf("ユーザーは既にこのバッジを保持しています: %s", badgeID),
		Category: CategoryConflict,
		Action:   "保持バッジ一覧を確認してください。",
	}
}

// NewBadgeInactiveError は無効化されたバッジを付与しようとした場合のエラーを生成する。
func NewBadgeInactiveError(badgeID string) *APIError {
	return &APIError{
		Code:     ErrCodeBadgeInactive,
		Message:  fmt.Sprintf("このバッジは現在無効です: %s", badgeID),
		Category: CategoryConflict,
		Action:   "有効なバッジを指定してください。",
	}
}

// NewAutomaticBadgeError は獲得条件を持つバッジを手動付与しようとした場合のエラーを生成する。
func NewAutomaticBadgeError(badgeID string) *APIError {
	return &APIError{
		Code:     ErrCodeAutomaticBadge,
		Message:  fmt.Sprintf("このバッジは獲得条件による自動付与専用です: %s", badgeID),
		Category: CategoryConflict,
		Action:   "手動付与用のバッジを指定してください。",
	}
}

// NewUserStatusConflictError はユーザー状態の遷移が許可されない場合のエラーを生成する。
func NewUserStatusConflictError(current, target UserStatus) *APIError {
	return &APIError{
		Code:     ErrCodeUserStatusConflict,
		Message:  fmt.Sprintf("ユーザー状態を %s から %s に変更できません。", current, target),
		Category: CategoryConflict,
		Action:   "ユーザーの現在の状態を確認してください。",
	}
}

// --- not_found ---

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", userID),
		Category: CategoryNotFound,
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("タスクが見つかりません: %s", taskID),
		Category: CategoryNotFound,
		Action:   "タスクIDを確認してください。",
	}
}

// NewProjectNotFoundError はプロジェクトが見つからない場合のエラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("プロジェクトが見つかりません: %s", projectID),
		Category: CategoryNotFound,
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewBadgeNotFoundError はバッジが見つからない場合のエラーを生成する。
func NewBadgeNotFoundError(badgeID string) *APIError {
	return &APIError{
		Code:     ErrCodeBadgeNotFound,
		Message:  fmt.Sprintf("バッジが見つかりません: %s", badgeID),
		Category: CategoryNotFound,
		Action:   "バッジIDを確認してください。",
	}
}

// NewUserBadgeNotFoundError はユーザーが対象バッジを保持していない場合のエラーを生成する。
func NewUserBadgeNotFoundError(userID, badgeID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserBadgeNotFound,
		Message:  fmt.Sprintf("ユーザー %s はバッジ %s を保持していません。", userID, badgeID),
		Category: CategoryNotFound,
		Action:   "保持バッジ一覧を確認してください。",
	}
}
