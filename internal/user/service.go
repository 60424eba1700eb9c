// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/labquest/internal/history"
	"github.com/hitoshi/labquest/internal/metrics"
	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/points"
	"github.com/hitoshi/labquest/internal/repository"
	"github.com/hitoshi/labquest/internal/role"
)

// statusGraph はアカウント状態の許可された遷移。
var statusGraph = map[model.UserStatus][]model.UserStatus{
	model.UserStatusPending:   {model.UserStatusActive, model.UserStatusRejected},
	model.UserStatusActive:    {model.UserStatusSuspended, model.UserStatusInactive},
	model.UserStatusSuspended: {model.UserStatusActive, model.UserStatusInactive},
	model.UserStatusInactive:  {model.UserStatusActive},
}

// CanChangeStatus はfromからtoへの状態変更が許可されるかを返す。
func CanChangeStatus(from, to model.UserStatus) bool {
	for _, s := range statusGraph[from] {
		if s == to {
			return true
		}
	}
	return false
}

func knownStatus(s model.UserStatus) bool {
	switch s {
	case model.UserStatusPending, model.UserStatusActive, model.UserStatusRejected,
		model.UserStatusSuspended, model.UserStatusInactive:
		return true
	}
	return false
}

// Service はユーザー管理のサービス層。
// 状態変更、ロール変更、管理者によるポイント減算を提供する。
type Service struct {
	tx      repository.Transactor
	history *history.Recorder
	metrics metrics.EngineRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	tx repository.Transactor,
	recorder *history.Recorder,
	engineMetrics metrics.EngineRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if engineMetrics == nil {
		engineMetrics = metrics.Nop{}
	}
	return &Service{
		tx:      tx,
		history: recorder,
		metrics: engineMetrics,
		logger:  logger,
		now:     time.Now,
	}
}

// loadPair は操作者と対象ユーザーを取得し、操作者の権限を検証する。
func loadPair(ctx context.Context, users repository.UserRepository, actorID, userID string, capability role.Capability, operation string) (*model.User, error) {
	actor, err := users.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if actor == nil {
		return nil, model.NewUserNotFoundError(actorID)
	}
	if !role.PermissionsFor(actor.Roles).Has(capability) {
		return nil, model.NewForbiddenError(operation)
	}

	target, err := users.FindByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return target, nil
}

// ChangeStatus はユーザーのアカウント状態を変更する。
// 現在と同じ状態への変更、および許可されていない遷移はconflictエラーを返す。
func (s *Service) ChangeStatus(ctx context.Context, actorID, userID string, target model.UserStatus) (*model.User, error) {
	if !knownStatus(target) {
		return nil, model.NewInvalidUserStatusError(string(target))
	}

	var result *model.User
	var before model.UserStatus
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		u, err := loadPair(ctx, st.Users, actorID, userID, role.CapManageUsers, "ユーザー状態の変更")
		if err != nil {
			return err
		}
		if u.Status == target || !CanChangeStatus(u.Status, target) {
			return model.NewUserStatusConflictError(u.Status, target)
		}

		before = u.Status
		u.Status = target
		u.UpdatedAt = s.now()
		if err := st.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
		}
		result = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.history.Record(ctx, history.Entry{
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Action:      history.ActionUserStatus,
		PerformedBy: actorID,
		Before:      map[string]model.UserStatus{"status": before},
		After:       map[string]model.UserStatus{"status": target},
	})
	s.logger.Info("user status changed",
		slog.String("user_id", userID),
		slog.String("from", string(before)),
		slog.String("to", string(target)),
		slog.String("actor_id", actorID),
	)
	return result, nil
}

// SetRoles はユーザーのグローバルロールを置き換える。
func (s *Service) SetRoles(ctx context.Context, actorID, userID string, tags []string) (*model.User, error) {
	roles, err := role.ValidateRoles(tags)
	if err != nil {
		return nil, err
	}

	var result *model.User
	var before []model.Role
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		u, err := loadPair(ctx, st.Users, actorID, userID, role.CapManageRoles, "ロールの変更")
		if err != nil {
			return err
		}

		before = u.Roles
		u.Roles = roles
		u.UpdatedAt = s.now()
		if err := st.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
		}
		result = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.history.Record(ctx, history.Entry{
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Action:      history.ActionUserRoles,
		PerformedBy: actorID,
		Before:      map[string][]model.Role{"roles": before},
		After:       map[string][]model.Role{"roles": roles},
	})
	return result, nil
}

// DeductPoints は管理者がユーザーのポイントを減算する。残高を超える減算はconflictエラーを返す。
func (s *Service) DeductPoints(ctx context.Context, actorID, userID string, amount int) (*model.User, error) {
	if amount <= 0 {
		return nil, model.NewInvalidAmountError(amount)
	}

	var result *model.User
	var before int
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
		u, err := loadPair(ctx, st.Users, actorID, userID, role.CapDeductPoints, "ポイントの減算")
		if err != nil {
			return err
		}

		before = u.Points
		if err := points.RemovePoints(u, amount); err != nil {
			return err
		}
		u.UpdatedAt = s.now()
		if err := st.Users.Update(ctx, u); err != nil {
			return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
		}
		result = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPointsDeducted(amount)
	s.history.Record(ctx, history.Entry{
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Action:      history.ActionPointsDeducted,
		PerformedBy: actorID,
		Before:      map[string]int{"points": before},
		After:       map[string]int{"points": result.Points, "amount": amount},
	})
	return result, nil
}
