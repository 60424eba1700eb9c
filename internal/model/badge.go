package model

import "time"

// BadgeCategory はバッジの分類を表す。
type BadgeCategory string

const (
	BadgeCategoryAchievement BadgeCategory = "achievement"
	BadgeCategoryMilestone   BadgeCategory = "milestone"
	BadgeCategorySpecial     BadgeCategory = "special"
	BadgeCategorySocial      BadgeCategory = "social"
)

// BadgeCriteria は自動付与バッジの獲得条件。
// nilのしきい値は条件なし（常に満たす）として扱う。
type BadgeCriteria struct {
	Points             *int     `json:"points,omitempty"`
	CompletedTasks     *int     `json:"completed_tasks,omitempty"`
	Projects           *int     `json:"projects,omitempty"`
	WorkSessions       *int     `json:"work_sessions,omitempty"`
	AverageWeeklyHours *float64 `json:"average_weekly_hours,omitempty"`
	ConsecutiveDays    *int     `json:"consecutive_days,omitempty"`
	SpecialCondition   string   `json:"special_condition,omitempty"`
}

// Badge はユーザーが獲得できるバッジを表す。
// Criteria がnilのバッジは手動付与専用。
type Badge struct {
	ID          string
	Name        string
	Description string
	Category    BadgeCategory
	Criteria    *BadgeCriteria
	Active      bool
	CreatedAt   time.Time
}

// IsAutomatic は評価器による自動付与の対象かを返す。
func (b *Badge) IsAutomatic() bool {
	return b.Criteria != nil
}

// UserBadge はユーザーが保持するバッジ。
// AwardedBy がnilの場合は評価器による自己獲得、非nilの場合は管理者による手動付与。
type UserBadge struct {
	ID        string
	UserID    string
	BadgeID   string
	EarnedAt  time.Time
	AwardedBy *string
}
