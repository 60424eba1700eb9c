// Package badge はユーザーの集計値とバッジの獲得条件を照合し、バッジを付与する。
package badge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/labquest/internal/history"
	"github.com/hitoshi/labquest/internal/metrics"
	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/repository"
	"github.com/hitoshi/labquest/internal/role"
)

// weeklyWindow は平均週間作業時間の集計期間（4週間）。
const weeklyWindow = 28 * 24 * time.Hour

// Evaluator はバッジの自動判定と手動付与・剥奪を行う。
type Evaluator struct {
	badges     repository.BadgeRepository
	userBadges repository.UserBadgeRepository
	users      repository.UserRepository
	stats      repository.StatsRepository
	history    *history.Recorder
	metrics    metrics.EngineRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewEvaluator はEvaluatorの新しいインスタンスを生成する。
func NewEvaluator(
	badges repository.BadgeRepository,
	userBadges repository.UserBadgeRepository,
	users repository.UserRepository,
	stats repository.StatsRepository,
	recorder *history.Recorder,
	engineMetrics metrics.EngineRecorder,
	logger *slog.Logger,
) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if engineMetrics == nil {
		engineMetrics = metrics.Nop{}
	}
	return &Evaluator{
		badges:     badges,
		userBadges: userBadges,
		users:      users,
		stats:      stats,
		history:    recorder,
		metrics:    engineMetrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Snapshot はバッジ判定に使うユーザーの集計値を取得する。
func (e *Evaluator) Snapshot(ctx context.Context, u *model.User) (model.UserStats, error) {
	s := model.UserStats{
		Points:         u.Points,
		CompletedTasks: u.CompletedTasks,
	}

	var err error
	if s.Projects, err = e.stats.CountProjects(ctx, u.ID); err != nil {
		return s, fmt.Errorf("failed to count projects: %w", err)
	}
	if s.WorkSessions, err = e.stats.CountWorkSessions(ctx, u.ID); err != nil {
		return s, fmt.Errorf("failed to count work sessions: %w", err)
	}

	hours, err := e.stats.SumWorkHoursSince(ctx, u.ID, e.now().Add(-weeklyWindow))
	if err != nil {
		return s, fmt.Errorf("failed to sum work hours: %w", err)
	}
	s.AverageWeeklyHours = hours / 4

	dates, err := e.stats.ListDailyLogDates(ctx, u.ID)
	if err != nil {
		return s, fmt.Errorf("failed to list daily logs: %w", err)
	}
	s.LongestStreak = LongestStreak(dates)
	return s, nil
}

// Qualifies は獲得条件のすべてのしきい値を満たすかを返す。
// 未指定のしきい値は満たしたものとして扱い、特別条件がある場合は specialMet も必要とする。
func Qualifies(c *model.BadgeCriteria, s model.UserStats, specialMet bool) bool {
	if c == nil {
		return false
	}
	if c.Points != nil && s.Points < *c.Points {
		return false
	}
	if c.CompletedTasks != nil && s.CompletedTasks < *c.CompletedTasks {
		return false
	}
	if c.Projects != nil && s.Projects < *c.Projects {
		return false
	}
	if c.WorkSessions != nil && s.WorkSessions < *c.WorkSessions {
		return false
	}
	if c.AverageWeeklyHours != nil && s.AverageWeeklyHours < *c.AverageWeeklyHours {
		return false
	}
	if c.ConsecutiveDays != nil && s.LongestStreak < *c.ConsecutiveDays {
		return false
	}
	if c.SpecialCondition != "" && !specialMet {
		return false
	}
	return true
}

// EvaluateUser は未保持の自動付与バッジを判定し、条件を満たしたものを付与する。
// 同時評価で一意制約に衝突した付与はスキップし、付与したバッジのみを返す。
func (e *Evaluator) EvaluateUser(ctx context.Context, userID string) ([]*model.Badge, error) {
	start := time.Now()

	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	candidates, err := e.pending(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		e.metrics.RecordEvaluation(time.Since(start), 0)
		return nil, nil
	}

	stats, err := e.Snapshot(ctx, u)
	if err != nil {
		return nil, err
	}

	var awarded []*model.Badge
	for _, b := range candidates {
		met, err := e.special(ctx, b, u)
		if err != nil {
			return awarded, err
		}
		if !Qualifies(b.Criteria, stats, met) {
			continue
		}

		ok, err := e.grant(ctx, u.ID, b, nil)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, b)
		}
	}

	e.metrics.RecordEvaluation(time.Since(start), len(awarded))
	if len(awarded) > 0 {
		e.logger.Info("badges awarded",
			slog.String("user_id", u.ID),
			slog.Int("count", len(awarded)),
		)
	}
	return awarded, nil
}

// pending は有効な自動付与バッジのうち未保持のものを返す。
func (e *Evaluator) pending(ctx context.Context, userID string) ([]*model.Badge, error) {
	held, err := e.userBadges.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	heldIDs := make(map[string]struct{}, len(held))
	for _, ub := range held {
		heldIDs[ub.BadgeID] = struct{}{}
	}

	all, err := e.badges.FindActiveCriteriaBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	out := make([]*model.Badge, 0, len(all))
	for _, b := range all {
		if _, ok := heldIDs[b.ID]; ok {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (e *Evaluator) special(ctx context.Context, b *model.Badge, u *model.User) (bool, error) {
	text := b.Criteria.SpecialCondition
	if text == "" {
		return true, nil
	}
	cond := ParseSpecialCondition(text)
	if cond.Kind == ConditionUnknown {
		e.logger.Debug("unrecognized special condition",
			slog.String("badge_id", b.ID),
			slog.String("condition", text),
		)
		return false, nil
	}
	return cond.Satisfied(ctx, e.stats, e.userBadges, b.ID, u)
}

// grant は保持バッジを作成する。既に保持している場合はfalseを返す。
func (e *Evaluator) grant(ctx context.Context, userID string, b *model.Badge, awardedBy *string) (bool, error) {
	ub := &model.UserBadge{
		ID:        uuid.New().String(),
		UserID:    userID,
		BadgeID:   b.ID,
		EarnedAt:  e.now(),
		AwardedBy: awardedBy,
	}
	if err := e.userBadges.Create(ctx, ub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			e.metrics.RecordDuplicateAward()
			e.logger.Debug("badge already held, skipping",
				slog.String("user_id", userID),
				slog.String("badge_id", b.ID),
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to create user badge: %w", err)
	}

	action, source, performedBy := history.ActionBadgeEarned, metrics.SourceAutomatic, userID
	if awardedBy != nil {
		action, source, performedBy = history.ActionBadgeAwarded, metrics.SourceManual, *awardedBy
	}
	e.metrics.RecordBadgeAwarded(source)
	e.history.Record(ctx, history.Entry{
		EntityType:  model.EntityUserBadge,
		EntityID:    ub.ID,
		Action:      action,
		PerformedBy: performedBy,
		After:       ub,
	})
	return true, nil
}

func (e *Evaluator) authorize(ctx context.Context, adminID, operation string) error {
	admin, err := e.users.FindByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if admin == nil {
		return model.NewUserNotFoundError(adminID)
	}
	if !role.PermissionsFor(admin.Roles).Has(role.CapManageBadges) {
		return model.NewForbiddenError(operation)
	}
	return nil
}

// EvaluateFor はactorIDの要求でuserIDのバッジ判定を行う。
// 本人以外を判定するにはバッジ管理権限が必要。
func (e *Evaluator) EvaluateFor(ctx context.Context, actorID, userID string) ([]*model.Badge, error) {
	if actorID != userID {
		if err := e.authorize(ctx, actorID, "バッジ判定"); err != nil {
			return nil, err
		}
	}
	return e.EvaluateUser(ctx, userID)
}

// Award は管理者が手動付与用のバッジをユーザーに付与する。
func (e *Evaluator) Award(ctx context.Context, adminID, userID, badgeID string) error {
	if err := e.authorize(ctx, adminID, "バッジの付与"); err != nil {
		return err
	}

	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError(userID)
	}
	b, err := e.badges.FindByID(ctx, badgeID)
	if err != nil {
		return fmt.Errorf("failed to find badge: %w", err)
	}
	if b == nil {
		return model.NewBadgeNotFoundError(badgeID)
	}
	if !b.Active {
		return model.NewBadgeInactiveError(badgeID)
	}
	if b.IsAutomatic() {
		return model.NewAutomaticBadgeError(badgeID)
	}

	ok, err := e.grant(ctx, userID, b, &adminID)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewBadgeAlreadyHeldError(badgeID)
	}
	return nil
}

// Revoke は管理者がユーザーの保持バッジを剥奪する。
func (e *Evaluator) Revoke(ctx context.Context, adminID, userID, badgeID string) error {
	if err := e.authorize(ctx, adminID, "バッジの剥奪"); err != nil {
		return err
	}

	removed, err := e.userBadges.Delete(ctx, userID, badgeID)
	if err != nil {
		return fmt.Errorf("failed to delete user badge: %w", err)
	}
	if !removed {
		return model.NewUserBadgeNotFoundError(userID, badgeID)
	}

	e.history.Record(ctx, history.Entry{
		EntityType:  model.EntityUser,
		EntityID:    userID,
		Action:      history.ActionBadgeRevoked,
		PerformedBy: adminID,
		Before:      map[string]string{"user_id": userID, "badge_id": badgeID},
	})
	return nil
}
