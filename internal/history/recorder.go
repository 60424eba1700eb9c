// Package history は監査ログの追記を提供する。
// 追記は主処理のコミット後に行い、失敗してもログに残すだけで呼び出し元には返さない。
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/repository"
)

// 履歴のアクション名
const (
	ActionTaskCreated    = "task.created"
	ActionTaskUpdated    = "task.updated"
	ActionTaskAssigned   = "task.assigned"
	ActionTaskStarted    = "task.started"
	ActionTaskSubmitted  = "task.submitted"
	ActionTaskApproved   = "task.approved"
	ActionTaskRejected   = "task.rejected"
	ActionTaskCompleted  = "task.completed"
	ActionPointsCredited = "points.credited"
	ActionPointsDeducted = "points.deducted"
	ActionUserStatus     = "user.status_changed"
	ActionUserRoles      = "user.roles_changed"
	ActionBadgeEarned    = "badge.earned"
	ActionBadgeAwarded   = "badge.awarded"
	ActionBadgeRevoked   = "badge.revoked"
)

// Entry は追記する1件分の入力。
type Entry struct {
	EntityType  string
	EntityID    string
	Action      string
	PerformedBy string
	Before      any
	After       any
}

// Recorder はEntryをJSONスナップショット付きの履歴レコードに変換して追記する。
type Recorder struct {
	sink   repository.HistoryRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder はRecorderを生成する。sinkがnilの場合は何も追記しない。
func NewRecorder(sink repository.HistoryRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

// Record は履歴を追記する。失敗はwarnログに記録して握りつぶす。
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}

	rec := &model.HistoryRecord{
		ID:          uuid.New().String(),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Action:      e.Action,
		PerformedBy: e.PerformedBy,
		Before:      r.snapshot(e, e.Before),
		After:       r.snapshot(e, e.After),
		CreatedAt:   r.now().UTC(),
	}

	if err := r.sink.Append(ctx, rec); err != nil {
		r.logger.Warn("failed to append history",
			slog.String("entity_type", e.EntityType),
			slog.String("entity_id", e.EntityID),
			slog.String("action", e.Action),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Recorder) snapshot(e Entry, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("failed to marshal history snapshot",
			slog.String("entity_type", e.EntityType),
			slog.String("entity_id", e.EntityID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return b
}
