package model

import "time"

// Project はプロジェクトを表す。LeaderID はリーダーが未設定の場合nil。
type Project struct {
	ID        string
	Name      string
	LeaderID  *string
	CreatedBy string
	CreatedAt time.Time
}

// IsLedBy は指定ユーザーがプロジェクトのリーダーかを返す。
func (p *Project) IsLedBy(userID string) bool {
	return p != nil && p.LeaderID != nil && *p.LeaderID == userID
}

// ProjectMembership はプロジェクト内でのユーザーの所属とロールを表す。
// Roles はユーザーのグローバルロールとは独立している。
type ProjectMembership struct {
	ID        string
	ProjectID string
	UserID    string
	Roles     []Role
	JoinedAt  time.Time
}
