package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/labquest/internal/history"
	"github.com/hitoshi/labquest/internal/metrics"
	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/notify"
	"github.com/hitoshi/labquest/internal/points"
	"github.com/hitoshi/labquest/internal/repository"
	"github.com/hitoshi/labquest/internal/role"
	"github.com/hitoshi/labquest/internal/security"
)

// BadgeEvaluator はタスク完了後に担当者のバッジ判定を行うインターフェース。
type BadgeEvaluator interface {
	EvaluateUser(ctx context.Context, userID string) ([]*model.Badge, error)
}

// CreateInput はタスク作成の入力。ProjectID がnilの場合はグローバルクエストとして作成する。
type CreateInput struct {
	Title       string
	Description string
	Priority    model.TaskPriority
	Visibility  model.TaskVisibility
	ProjectID   *string
	AssigneeID  *string
	DueDate     *time.Time
	Points      int
}

// UpdateInput はタスク編集の入力。nilの項目は変更しない。
type UpdateInput struct {
	Title        *string
	Description  *string
	Priority     *model.TaskPriority
	DueDate      *time.Time
	ClearDueDate bool
	Points       *int
}

// Completion はdoneへの遷移結果。Award は担当者に適用したポイント内訳。
type Completion struct {
	Task       *model.Task
	Award      points.Result
	AssigneeID string
	Balance    int
}

// Service はタスクワークフローのサービス層。
// 各操作のガード判定・状態変更・ポイント付与は1トランザクションで行い、
// 履歴・通知・メトリクス・バッジ判定はコミット後にベストエフォートで行う。
type Service struct {
	tx        repository.Transactor
	history   *history.Recorder
	notifier  notify.Sink
	metrics   metrics.EngineRecorder
	sanitizer security.TextSanitizer
	badges    BadgeEvaluator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tx repository.Transactor,
	recorder *history.Recorder,
	notifier notify.Sink,
	engineMetrics metrics.EngineRecorder,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if engineMetrics == nil {
		engineMetrics = metrics.Nop{}
	}
	if notifier == nil {
		notifier = notify.NewLogSink(logger)
	}
	return &Service{
		tx:        tx,
		history:   recorder,
		notifier:  notifier,
		metrics:   engineMetrics,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBadgeEvaluator は完了後に呼び出すバッジ判定を設定する。
func (s *Service) SetBadgeEvaluator(e BadgeEvaluator) {
	s.badges = e
}

// effects はコミット後に実行する副作用。
type effects struct {
	entries      []history.Entry
	notification *model.Notification
	event        Event
	from, to     model.TaskStatus
	completion   *points.Result
	evaluateUser string
}

// taskContext は操作対象のタスクと、認可判定に使うプロジェクト情報。
type taskContext struct {
	task       *model.Task
	actor      *model.User
	project    *model.Project
	membership *model.ProjectMembership
}

// load はタスクを行ロック付きで取得し、操作者とプロジェクト所属を解決する。
// いずれかが存在しない場合はnot_foundエラーを返す。
func load(ctx context.Context, st repository.Stores, actorID, taskID string) (*taskContext, error) {
	t, err := st.Tasks.FindByIDForUpdate(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	actor, err := st.Users.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if actor == nil {
		return nil, model.NewUserNotFoundError(actorID)
	}

	tc := &taskContext{task: t, actor: actor}
	if t.ProjectID == nil {
		return tc, nil
	}

	tc.project, tc.membership, err = resolveProject(ctx, st, *t.ProjectID, actorID)
	if err != nil {
		return nil, err
	}
	return tc, nil
}

func resolveProject(ctx context.Context, st repository.Stores, projectID, userID string) (*model.Project, *model.ProjectMembership, error) {
	p, err := st.Projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, nil, model.NewProjectNotFoundError(projectID)
	}
	m, err := st.Projects.FindMembership(ctx, projectID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("プロジェクト所属の取得に失敗しました: %w", err)
	}
	return p, m, nil
}

// canManage はタスクの管理（割り当て・代理提出）が許可されるかを返す。
// グローバルクエストは CapManageProjects を持つロールのみ。
func (tc *taskContext) canManage() bool {
	if tc.project == nil {
		return role.CanManageAnyProject(tc.actor.Roles)
	}
	return role.CanManageProject(tc.membership, tc.actor.Roles) || tc.project.IsLedBy(tc.actor.ID)
}

func snapshot(t *model.Task) *model.Task {
	c := *t
	return &c
}

// Create はタスクを作成する。
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*model.Task, error) {
	title := s.sanitizer.Text(in.Title)
	if title == "" {
		return nil, model.NewTitleRequiredError()
	}
	if in.Points < 0 {
		return nil, model.NewNegativePointsError(in.Points)
	}
	priority := in.Priority
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	if !priority.Valid() {
		return nil, model.NewInvalidPriorityError(string(priority))
	}
	visibility := in.Visibility
	if in.ProjectID == nil {
		if in.AssigneeID != nil {
			return nil, model.NewGlobalTaskAssigneeError()
		}
		if visibility != "" && visibility != model.TaskVisibilityGlobal {
			return nil, model.NewInvalidVisibilityError(string(visibility))
		}
		visibility = model.TaskVisibilityGlobal
	} else {
		if visibility == "" {
			visibility = model.TaskVisibilityPublic
		}
		if !visibility.Valid() || visibility == model.TaskVisibilityGlobal {
			return nil, model.NewInvalidVisibilityError(string(visibility))
		}
	}

	now := s.now()
	t := &model.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: s.sanitizer.RichText(in.Description),
		Priority:    priority,
		AssigneeID:  in.AssigneeID,
		ProjectID:   in.ProjectID,
		CreatedBy:   actorID,
		DueDate:     in.DueDate,
		Points:      in.Points,
		Visibility:  visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.SetStatus(model.TaskStatusToDo)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		actor, err := st.Users.FindByID(ctx, actorID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if actor == nil {
			return model.NewUserNotFoundError(actorID)
		}

		if t.ProjectID == nil {
			if !role.PermissionsFor(actor.Roles).Has(role.CapCreateGlobalTask) {
				return model.NewForbiddenError("グローバルクエストの作成")
			}
		} else {
			project, membership, err := resolveProject(ctx, st, *t.ProjectID, actorID)
			if err != nil {
				return err
			}
			if t.AssigneeID != nil {
				if err := ensureUser(ctx, st, *t.AssigneeID); err != nil {
					return err
				}
			}
			if !role.CanManageProject(membership, actor.Roles) && !project.IsLedBy(actorID) {
				return model.NewForbiddenError("タスクの作成")
			}
		}

		if err := st.Tasks.Create(ctx, t); err != nil {
			return fmt.Errorf("タスクの作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.apply(ctx, actorID, t, &effects{
		entries: []history.Entry{{
			EntityType:  model.EntityTask,
			EntityID:    t.ID,
			Action:      history.ActionTaskCreated,
			PerformedBy: actorID,
			After:       t,
		}},
	})
	return t, nil
}

func ensureUser(ctx context.Context, st repository.Stores, userID string) error {
	u, err := st.Users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError(userID)
	}
	return nil
}

// Assign はタスクの担当者を設定する。状態は変更しない。
func (s *Service) Assign(ctx context.Context, actorID, taskID, assigneeID string) (*model.Task, error) {
	var fx effects
	var result *model.Task

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		tc, err := load(ctx, st, actorID, taskID)
		if err != nil {
			return err
		}
		if err := ensureUser(ctx, st, assigneeID); err != nil {
			return err
		}
		t := tc.task
		if t.Status == model.TaskStatusDone {
			return model.NewTaskAlreadyDoneError(t.ID)
		}
		if t.IsGlobal() {
			return model.NewGlobalTaskAssigneeError()
		}
		if !tc.canManage() {
			return model.NewForbiddenError("タスクの割り当て")
		}

		before := snapshot(t)
		t.AssigneeID = &assigneeID
		t.UpdatedAt = s.now()
		if err := st.Tasks.Update(ctx, t); err != nil {
			return fmt.Errorf("タスクの更新に失敗しました: %w", err)
		}

		result = t
		fx.entries = append(fx.entries, history.Entry{
			EntityType:  model.EntityTask,
			EntityID:    t.ID,
			Action:      history.ActionTaskAssigned,
			PerformedBy: actorID,
			Before:      before,
			After:       snapshot(t),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.apply(ctx, actorID, result, &fx)
	return result, nil
}

// Start は担当者が作業を開始する（to-do / adjust → in-progress）。
func (s *Service) Start(ctx context.Context, actorID, taskID string) (*model.Task, error) {
	return s.simpleTransition(ctx, actorID, taskID, EventStart, history.ActionTaskStarted, func(tc *taskContext) error {
		if !tc.task.IsAssignedTo(actorID) && !tc.canManage() {
			return model.NewForbiddenError("タスクの開始")
		}
		return nil
	})
}

// SubmitForReview はタスクをレビュー待ちにし、プロジェクトリーダーに通知する。
func (s *Service) SubmitForReview(ctx context.Context, actorID, taskID string) (*model.Task, error) {
	var recipient string
	t, err := s.simpleTransition(ctx, actorID, taskID, EventSubmit, history.ActionTaskSubmitted, func(tc *taskContext) error {
		if tc.task.AssigneeID == nil {
			return model.NewNoAssigneeError(tc.task.ID)
		}
		if !tc.task.IsAssignedTo(actorID) && !tc.canManage() {
			return model.NewForbiddenError("レビューへの提出")
		}
		recipient = tc.task.CreatedBy
		if tc.project != nil && tc.project.LeaderID != nil {
			recipient = *tc.project.LeaderID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &model.Notification{
		Kind:         model.NotificationTaskSubmitted,
		TaskID:       t.ID,
		RecipientIDs: []string{recipient},
		ActorID:      actorID,
		Message:      fmt.Sprintf("タスク「%s」がレビューに提出されました。", t.Title),
	})
	return t, nil
}

// simpleTransition はポイント付与を伴わない遷移の共通処理。
func (s *Service) simpleTransition(
	ctx context.Context,
	actorID, taskID string,
	event Event,
	action string,
	guard func(tc *taskContext) error,
) (*model.Task, error) {
	var fx effects
	var result *model.Task

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		tc, err := load(ctx, st, actorID, taskID)
		if err != nil {
			return err
		}
		if err := checkTransition(tc.task, event); err != nil {
			return err
		}
		before := snapshot(tc.task)
		if err := guard(tc); err != nil {
			return err
		}

		t := tc.task
		to, _ := Target(event)
		t.SetStatus(to)
		t.UpdatedAt = s.now()
		if err := st.Tasks.Update(ctx, t); err != nil {
			return fmt.Errorf("タスクの更新に失敗しました: %w", err)
		}

		result = t
		fx.event, fx.from, fx.to = event, before.Status, to
		fx.entries = append(fx.entries, history.Entry{
			EntityType:  model.EntityTask,
			EntityID:    t.ID,
			Action:      action,
			PerformedBy: actorID,
			Before:      before,
			After:       snapshot(t),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.apply(ctx, actorID, result, &fx)
	return result, nil
}

// Approve はレビュー中のタスクを承認してdoneにし、担当者にポイントを付与する。
func (s *Service) Approve(ctx context.Context, approverID, taskID string) (*Completion, error) {
	c, err := s.finish(ctx, approverID, taskID, EventApprove, func(tc *taskContext) error {
		if !role.CanApproveTask(approverID, tc.actor.Roles, tc.membership, tc.project) {
			return model.NewForbiddenError("タスクの承認")
		}
		if role.IsSelfApproval(approverID, tc.actor.Roles, tc.membership, tc.task, tc.project) {
			return model.NewSelfApprovalError()
		}
		if tc.task.AssigneeID == nil {
			return model.NewNoAssigneeError(tc.task.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &model.Notification{
		Kind:         model.NotificationTaskApproved,
		TaskID:       c.Task.ID,
		RecipientIDs: []string{c.AssigneeID},
		ActorID:      approverID,
		Message:      fmt.Sprintf("タスク「%s」が承認されました（%+dポイント）。", c.Task.Title, c.Award.Net),
	})
	return c, nil
}

// Complete はタスクを直接完了する。
// 担当者のいないグローバルクエストは完了者が担当者になる。
func (s *Service) Complete(ctx context.Context, actorID, taskID string) (*Completion, error) {
	return s.finish(ctx, actorID, taskID, EventComplete, func(tc *taskContext) error {
		t := tc.task
		if t.IsGlobal() && t.AssigneeID == nil {
			id := actorID
			t.AssigneeID = &id
			return nil
		}
		if t.AssigneeID == nil {
			return model.NewNoAssigneeError(t.ID)
		}
		allowed := t.IsAssignedTo(actorID) ||
			role.PermissionsFor(tc.actor.Roles).Has(role.CapCompleteAnyTask) ||
			tc.project.IsLedBy(actorID)
		if !allowed {
			return model.NewForbiddenError("タスクの完了")
		}
		if role.IsSelfApproval(actorID, tc.actor.Roles, tc.membership, t, tc.project) {
			return model.NewSelfApprovalError()
		}
		return nil
	})
}

// finish はdoneへ遷移させ、遅延ペナルティを計算して担当者の残高と完了数を同一トランザクションで更新する。
func (s *Service) finish(
	ctx context.Context,
	actorID, taskID string,
	event Event,
	guard func(tc *taskContext) error,
) (*Completion, error) {
	var fx effects
	var result *Completion

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		tc, err := load(ctx, st, actorID, taskID)
		if err != nil {
			return err
		}
		if err := checkTransition(tc.task, event); err != nil {
			return err
		}
		before := snapshot(tc.task)
		if err := guard(tc); err != nil {
			return err
		}

		t := tc.task
		assigneeID := *t.AssigneeID
		assignee, err := st.Users.FindByIDForUpdate(ctx, assigneeID)
		if err != nil {
			return fmt.Errorf("担当者の取得に失敗しました: %w", err)
		}
		if assignee == nil {
			return model.NewUserNotFoundError(assigneeID)
		}

		now := s.now()
		award := points.Award(t.DueDate, t.Points, now)
		pointsBefore, tasksBefore := assignee.Points, assignee.CompletedTasks
		if err := points.Credit(assignee, award); err != nil {
			return err
		}

		t.SetStatus(model.TaskStatusDone)
		t.CompletedAt = &now
		t.UpdatedAt = now
		if event == EventApprove {
			approver := actorID
			t.ApprovedBy = &approver
			t.ApprovedAt = &now
		}

		if err := st.Tasks.Update(ctx, t); err != nil {
			return fmt.Errorf("タスクの更新に失敗しました: %w", err)
		}
		if err := st.Users.Update(ctx, assignee); err != nil {
			return fmt.Errorf("担当者の更新に失敗しました: %w", err)
		}

		result = &Completion{Task: t, Award: award, AssigneeID: assigneeID, Balance: assignee.Points}

		action := history.ActionTaskCompleted
		if event == EventApprove {
			action = history.ActionTaskApproved
		}
		fx.event, fx.from, fx.to = event, before.Status, model.TaskStatusDone
		fx.completion = &award
		fx.evaluateUser = assigneeID
		fx.entries = append(fx.entries,
			history.Entry{
				EntityType:  model.EntityTask,
				EntityID:    t.ID,
				Action:      action,
				PerformedBy: actorID,
				Before:      before,
				After:       snapshot(t),
			},
			history.Entry{
				EntityType:  model.EntityUser,
				EntityID:    assigneeID,
				Action:      history.ActionPointsCredited,
				PerformedBy: actorID,
				Before:      map[string]int{"points": pointsBefore, "completed_tasks": tasksBefore},
				After: map[string]any{
					"points":          assignee.Points,
					"completed_tasks": assignee.CompletedTasks,
					"task_id":         t.ID,
					"task_points":     award.Points,
					"penalty":         award.Penalty,
					"days_late":       award.DaysLate,
					"net":             award.Net,
				},
			},
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.apply(ctx, actorID, result.Task, &fx)
	return result, nil
}

// Reject はレビュー中のタスクを差し戻す（in-review → adjust）。理由はプレーンテキストとして保存する。
func (s *Service) Reject(ctx context.Context, approverID, taskID, reason string) (*model.Task, error) {
	reason = s.sanitizer.Text(reason)

	var assigneeID string
	t, err := s.simpleTransition(ctx, approverID, taskID, EventReject, history.ActionTaskRejected, func(tc *taskContext) error {
		if !role.CanApproveTask(approverID, tc.actor.Roles, tc.membership, tc.project) {
			return model.NewForbiddenError("タスクの差し戻し")
		}
		tc.task.RejectionReason = reason
		if tc.task.AssigneeID != nil {
			assigneeID = *tc.task.AssigneeID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if assigneeID != "" {
		msg := fmt.Sprintf("タスク「%s」が差し戻されました。", t.Title)
		if reason != "" {
			msg += " 理由: " + reason
		}
		s.notify(ctx, &model.Notification{
			Kind:         model.NotificationTaskRejected,
			TaskID:       t.ID,
			RecipientIDs: []string{assigneeID},
			ActorID:      approverID,
			Message:      msg,
		})
	}
	return t, nil
}

// Update はタスクの内容を編集する。完了済みタスクは CanModifyCompletedTask を満たす場合のみ編集できる。
// ポイントを変更しても付与済みのポイントは再計算しない。
func (s *Service) Update(ctx context.Context, actorID, taskID string, in UpdateInput) (*model.Task, error) {
	var title string
	if in.Title != nil {
		title = s.sanitizer.Text(*in.Title)
		if title == "" {
			return nil, model.NewTitleRequiredError()
		}
	}
	if in.Points != nil && *in.Points < 0 {
		return nil, model.NewNegativePointsError(*in.Points)
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, model.NewInvalidPriorityError(string(*in.Priority))
	}

	var fx effects
	var result *model.Task

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		tc, err := load(ctx, st, actorID, taskID)
		if err != nil {
			return err
		}
		t := tc.task
		if t.Status == model.TaskStatusDone {
			if !role.CanModifyCompletedTask(actorID, tc.actor.Roles, tc.project) {
				return model.NewForbiddenError("完了済みタスクの編集")
			}
		} else if t.CreatedBy != actorID && !tc.canManage() {
			return model.NewForbiddenError("タスクの編集")
		}

		before := snapshot(t)
		if in.Title != nil {
			t.Title = title
		}
		if in.Description != nil {
			t.Description = s.sanitizer.RichText(*in.Description)
		}
		if in.Priority != nil {
			t.Priority = *in.Priority
		}
		if in.ClearDueDate {
			t.DueDate = nil
		} else if in.DueDate != nil {
			d := *in.DueDate
			t.DueDate = &d
		}
		if in.Points != nil {
			t.Points = *in.Points
		}
		t.UpdatedAt = s.now()

		if err := st.Tasks.Update(ctx, t); err != nil {
			return fmt.Errorf("タスクの更新に失敗しました: %w", err)
		}

		result = t
		fx.entries = append(fx.entries, history.Entry{
			EntityType:  model.EntityTask,
			EntityID:    t.ID,
			Action:      history.ActionTaskUpdated,
			PerformedBy: actorID,
			Before:      before,
			After:       snapshot(t),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.apply(ctx, actorID, result, &fx)
	return result, nil
}

// apply はコミット後の副作用を実行する。いずれの失敗も呼び出し元には返さない。
func (s *Service) apply(ctx context.Context, actorID string, t *model.Task, fx *effects) {
	for _, e := range fx.entries {
		s.history.Record(ctx, e)
	}

	if fx.event != "" {
		s.metrics.RecordTransition(string(fx.event), string(fx.from), string(fx.to))
		s.logger.Info("task transitioned",
			slog.String("task_id", t.ID),
			slog.String("event", string(fx.event)),
			slog.String("from", string(fx.from)),
			slog.String("to", string(fx.to)),
			slog.String("actor_id", actorID),
		)
	}

	if fx.completion != nil {
		s.metrics.RecordCompletion(fx.completion.Net, fx.completion.Penalty, fx.completion.DaysLate)
		if fx.completion.Penalty > 0 {
			s.logger.Info("late completion penalty applied",
				slog.String("task_id", t.ID),
				slog.Int("days_late", fx.completion.DaysLate),
				slog.Int("penalty", fx.completion.Penalty),
				slog.Int("net", fx.completion.Net),
			)
		}
	}

	if fx.evaluateUser != "" && s.badges != nil {
		if _, err := s.badges.EvaluateUser(ctx, fx.evaluateUser); err != nil {
			s.logger.Warn("badge evaluation after completion failed",
				slog.String("user_id", fx.evaluateUser),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Service) notify(ctx context.Context, n *model.Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = s.now().UTC()
	n.RecipientIDs = compact(n.RecipientIDs)
	if len(n.RecipientIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("failed to send notification",
			slog.String("kind", string(n.Kind)),
			slog.String("task_id", n.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

func compact(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			out = append(out, id)
		}
	}
	return out
}
