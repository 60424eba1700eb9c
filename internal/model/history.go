package model

import (
	"encoding/json"
	"time"
)

// 履歴レコードのエンティティ種別
const (
	EntityTask      = "task"
	EntityUser      = "user"
	EntityUserBadge = "user_badge"
)

// HistoryRecord は追記専用の監査ログ1件を表す。書き込み後に変更してはならない。
type HistoryRecord struct {
	ID          string
	EntityType  string
	EntityID    string
	Action      string
	PerformedBy string
	Before      json.RawMessage
	After       json.RawMessage
	CreatedAt   time.Time
}

// NotificationKind は通知の種類を表す。
type NotificationKind string

const (
	NotificationTaskSubmitted NotificationKind = "task_submitted"
	NotificationTaskApproved  NotificationKind = "task_approved"
	NotificationTaskRejected  NotificationKind = "task_rejected"
)

// Notification はタスクのレビュー状況をユーザーに知らせるイベント。
type Notification struct {
	ID           string           `json:"id"`
	Kind         NotificationKind `json:"kind"`
	TaskID       string           `json:"task_id"`
	RecipientIDs []string         `json:"recipient_ids"`
	ActorID      string           `json:"actor_id"`
	Message      string           `json:"message"`
	CreatedAt    time.Time        `json:"created_at"`
}
