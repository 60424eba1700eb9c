// Package role はロールタグから権限を判定するロール権限モデルを提供する。
//
// 権限判定はロールごとの能力（Capability）集合の和集合で行い、
// ロールの表示優先度（PrimaryRole）は判定に一切使わない。
// すべての関数は純粋関数でありI/Oを行わない。
package role

import "github.com/hitoshi/labquest/internal/model"

// Capability はロールが付与する個別の能力を表す。
type Capability int

const (
	// CapManageUsers はユーザーの状態変更を許可する。
	CapManageUsers Capability = iota
	// CapManageRoles はユーザーのロール変更を許可する。
	CapManageRoles
	// CapCreateGlobalTask はプロジェクト外のグローバルクエスト作成を許可する。
	CapCreateGlobalTask
	// CapApproveAnyTask はプロジェクトを問わずタスク承認を許可する。
	CapApproveAnyTask
	// CapModifyCompletedTask は完了済みタスクの編集を許可する。
	CapModifyCompletedTask
	// CapManageProjects はグローバルロールとして、所属していないプロジェクトと
	// グローバルクエストの管理を許可する。
	CapManageProjects
	// CapManageJoinedProject は所属ロールとして、そのプロジェクトの管理を許可する。
	CapManageJoinedProject
	// CapManageBadges はバッジの手動付与・剥奪を許可する。
	CapManageBadges
	// CapDeductPoints は管理者によるポイント減算を許可する。
	CapDeductPoints
	// CapCompleteAnyTask は担当者以外によるタスクの直接完了を許可する。
	CapCompleteAnyTask
)

type capSet map[Capability]struct{}

func caps(cs ...Capability) capSet {
	s := make(capSet, len(cs))
	for _, c := range cs {
		s[c] = struct{}{}
	}
	return s
}

// permissionTable はロールごとの能力表。ロールの追加はこの表の変更のみで行う。
// 担当タスクの完了のように全員に許可される操作は能力を持たない。
var permissionTable = map[model.Role]capSet{
	model.RoleCoordinator: caps(
		CapManageUsers, CapManageRoles, CapCreateGlobalTask, CapApproveAnyTask,
		CapModifyCompletedTask, CapManageProjects, CapManageJoinedProject,
		CapManageBadges, CapDeductPoints, CapCompleteAnyTask,
	),
	model.RoleManager: caps(
		CapManageUsers, CapCreateGlobalTask, CapApproveAnyTask,
		CapModifyCompletedTask, CapManageProjects, CapManageJoinedProject,
		CapManageBadges, CapDeductPoints, CapCompleteAnyTask,
	),
	model.RoleLaboratoryTech: caps(CapModifyCompletedTask),
	model.RoleProjectManager: caps(CapModifyCompletedTask, CapManageJoinedProject),
	model.RoleResearcher:     caps(),
	model.RoleCollaborator:   caps(),
	model.RoleVolunteer:      caps(),
}

// Permissions はロール集合から導出した読み取り専用の権限ビュー。
type Permissions struct {
	caps capSet
}

// PermissionsFor はロール集合に能力表を畳み込んで権限ビューを生成する。
func PermissionsFor(roles []model.Role) Permissions {
	out := make(capSet)
	for _, r := range roles {
		for c := range permissionTable[r] {
			out[c] = struct{}{}
		}
	}
	return Permissions{caps: out}
}

// Has は指定能力を持つかを返す。
func (p Permissions) Has(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

// HasAnyRole はactorRolesとrequiredの積集合が空でないかを返す。
func HasAnyRole(actorRoles []model.Role, required ...model.Role) bool {
	for _, have := range actorRoles {
		for _, want := range required {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanManageProject はプロジェクトの管理権限があるかを判定する。
// 所属がある場合は所属ロールの CapManageJoinedProject のみで判定し、
// 所属がない場合に限りグローバルロールの CapManageProjects で判定する。
func CanManageProject(membership *model.ProjectMembership, globalRoles []model.Role) bool {
	if membership != nil {
		return PermissionsFor(membership.Roles).Has(CapManageJoinedProject)
	}
	return CanManageAnyProject(globalRoles)
}

// CanManageAnyProject は所属と無関係にプロジェクトとグローバルクエストを管理できるかを返す。
func CanManageAnyProject(globalRoles []model.Role) bool {
	return PermissionsFor(globalRoles).Has(CapManageProjects)
}

// isProjectManager はグローバルまたは所属ロールに project_manager を持つかを返す。
func isProjectManager(globalRoles []model.Role, membership *model.ProjectMembership) bool {
	if HasAnyRole(globalRoles, model.RoleProjectManager) {
		return true
	}
	return membership != nil && HasAnyRole(membership.Roles, model.RoleProjectManager)
}

// CanApproveTask はタスクの承認・差し戻し権限を判定する。
// coordinator / manager は無条件に許可する。
// project_manager はタスクのプロジェクトに所属し、かつそのプロジェクトの
// リーダー本人である場合のみ許可する（ロールタグだけでは不十分）。
// projectがnilのタスク（グローバルクエスト）は組織管理者のみ承認できる。
func CanApproveTask(approverID string, globalRoles []model.Role, membership *model.ProjectMembership, project *model.Project) bool {
	if PermissionsFor(globalRoles).Has(CapApproveAnyTask) {
		return true
	}
	if project == nil || membership == nil {
		return false
	}
	if membership.UserID != approverID || membership.ProjectID != project.ID {
		return false
	}
	return isProjectManager(globalRoles, membership) && project.IsLedBy(approverID)
}

// IsSelfApproval はプロジェクトリーダーである project_manager が
// 自分に割り当てられたタスクを自分で完了・承認しようとしているかを判定する。
func IsSelfApproval(actorID string, globalRoles []model.Role, membership *model.ProjectMembership, task *model.Task, project *model.Project) bool {
	if task == nil || project == nil || !task.IsAssignedTo(actorID) {
		return false
	}
	return isProjectManager(globalRoles, membership) && project.IsLedBy(actorID)
}

// CanModifyCompletedTask は完了済みタスクを編集できるかを判定する。
// coordinator / manager / project_manager / laboratory_tech、
// またはタスクのプロジェクトのリーダー・作成者のみ許可する。
func CanModifyCompletedTask(actorID string, globalRoles []model.Role, project *model.Project) bool {
	if PermissionsFor(globalRoles).Has(CapModifyCompletedTask) {
		return true
	}
	if project == nil {
		return false
	}
	return project.IsLedBy(actorID) || project.CreatedBy == actorID
}

// displayOrder は表示用の優先順位。権限判定には使わない。
var displayOrder = []model.Role{
	model.RoleCoordinator,
	model.RoleManager,
	model.RoleLaboratoryTech,
	model.RoleProjectManager,
	model.RoleResearcher,
	model.RoleCollaborator,
	model.RoleVolunteer,
}

// PrimaryRole は表示用の代表ロールを返す。ロールがない場合は空文字列。
func PrimaryRole(roles []model.Role) model.Role {
	for _, r := range displayOrder {
		if HasAnyRole(roles, r) {
			return r
		}
	}
	return ""
}

// ValidateRoles は文字列のロールタグを検証し、重複を除いたRoleのスライスを返す。
func ValidateRoles(tags []string) ([]model.Role, error) {
	if len(tags) == 0 {
		return nil, model.NewEmptyRolesError()
	}
	seen := make(map[model.Role]struct{}, len(tags))
	roles := make([]model.Role, 0, len(tags))
	for _, tag := range tags {
		r, err := model.ParseRole(tag)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		roles = append(roles, r)
	}
	return roles, nil
}
