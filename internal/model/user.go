// Package model はドメインモデルを定義する。
package model

import "time"

// Role は組織内のロールタグを表す。
// 値は閉じた列挙であり、ParseRole を通さない文字列は受け付けない。
type Role string

const (
	RoleCoordinator    Role = "coordinator"
	RoleManager        Role = "manager"
	RoleLaboratoryTech Role = "laboratory_tech"
	RoleProjectManager Role = "project_manager"
	RoleResearcher     Role = "researcher"
	RoleCollaborator   Role = "collaborator"
	RoleVolunteer      Role = "volunteer"
)

// AllRoles は定義済みロールの一覧を返す。
func AllRoles() []Role {
	return []Role{
		RoleCoordinator,
		RoleManager,
		RoleLaboratoryTech,
		RoleProjectManager,
		RoleResearcher,
		RoleCollaborator,
		RoleVolunteer,
	}
}

// ParseRole は文字列をRoleに変換する。未知のタグはバリデーションエラーを返す。
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewInvalidRoleError(s)
}

// UserStatus はアカウントの状態を表す。
type UserStatus string

const (
	// UserStatusPending は登録直後の承認待ち状態。
	UserStatusPending UserStatus = "pending"
	// UserStatusActive は利用可能な状態。
	UserStatusActive UserStatus = "active"
	// UserStatusRejected は登録が却下された状態。
	UserStatusRejected UserStatus = "rejected"
	// UserStatusSuspended は一時停止中の状態。
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusInactive は退会・休眠状態。
	UserStatusInactive UserStatus = "inactive"
)

// User はボランティア/ラボの参加ユーザーを表す。
// Points はペナルティ適用時のみ負になり得る。
type User struct {
	ID                string
	Email             string
	Name              string
	Roles             []Role
	Status            UserStatus
	Points            int
	CompletedTasks    int
	WeeklyHoursTarget float64
	WeeklyHoursActual float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasRole はユーザーが指定ロールを保持しているかを返す。
func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// UserStats はバッジ判定に使う集計値のスナップショット。
type UserStats struct {
	Points             int
	CompletedTasks     int
	Projects           int
	WorkSessions       int
	AverageWeeklyHours float64
	LongestStreak      int
}
