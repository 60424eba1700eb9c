package role

import (
	"testing"

	"github.com/hitoshi/labquest/internal/model"
)

func strPtr(s string) *string { return &s }

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name     string
		actor    []model.Role
		required []model.Role
		want     bool
	}{
		{"intersection", []model.Role{model.RoleVolunteer, model.RoleManager}, []model.Role{model.RoleManager}, true},
		{"no intersection", []model.Role{model.RoleVolunteer}, []model.Role{model.RoleCoordinator, model.RoleManager}, false},
		{"empty actor", nil, []model.Role{model.RoleVolunteer}, false},
		{"empty required", []model.Role{model.RoleVolunteer}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyRole(tt.actor, tt.required...); got != tt.want {
				t.Errorf("HasAnyRole(%v, %v) = %v, want %v", tt.actor, tt.required, got, tt.want)
			}
		})
	}
}

func TestPermissionsFor_UnionAcrossRoles(t *testing.T) {
	p := PermissionsFor([]model.Role{model.RoleProjectManager, model.RoleLaboratoryTech})

	if !p.Has(CapManageJoinedProject) {
		t.Error("expected CapManageJoinedProject from project_manager")
	}
	if !p.Has(CapModifyCompletedTask) {
		t.Error("expected CapModifyCompletedTask from laboratory_tech")
	}
	if p.Has(CapApproveAnyTask) {
		t.Error("project_manager + laboratory_tech must not grant CapApproveAnyTask")
	}
}

func TestPermissionsFor_EveryRoleHasEntry(t *testing.T) {
	for _, r := range model.AllRoles() {
		if _, ok := permissionTable[r]; !ok {
			t.Errorf("permission table has no entry for %q", r)
		}
	}
}

func TestCanManageProject_MembershipRolesDecide(t *testing.T) {
	m := &model.ProjectMembership{ProjectID: "p1", UserID: "u1", Roles: []model.Role{model.RoleProjectManager}}
	if !CanManageProject(m, []model.Role{model.RoleVolunteer}) {
		t.Error("project_manager membership should manage the project")
	}

	// 所属がある場合はグローバルロールへフォールバックしない
	member := &model.ProjectMembership{ProjectID: "p1", UserID: "u1", Roles: []model.Role{model.RoleResearcher}}
	if CanManageProject(member, []model.Role{model.RoleCoordinator}) {
		t.Error("membership without management roles should not manage the project")
	}
}

func TestCanManageProject_NoMembershipFallsBackToGlobalAdmins(t *testing.T) {
	if !CanManageProject(nil, []model.Role{model.RoleManager}) {
		t.Error("global manager without membership should manage the project")
	}
	if CanManageProject(nil, []model.Role{model.RoleProjectManager}) {
		t.Error("global project_manager without membership must not manage the project")
	}
}

// withCapability はテスト中だけroleにcapを追加する。
func withCapability(t *testing.T, r model.Role, c Capability) {
	t.Helper()
	orig := permissionTable[r]
	next := make(capSet, len(orig)+1)
	for k := range orig {
		next[k] = struct{}{}
	}
	next[c] = struct{}{}
	permissionTable[r] = next
	t.Cleanup(func() { permissionTable[r] = orig })
}

func TestCanManageProject_DecidedByPermissionTable(t *testing.T) {
	labTech := []model.Role{model.RoleLaboratoryTech}
	if CanManageProject(nil, labTech) || CanManageAnyProject(labTech) {
		t.Fatal("laboratory_tech should not manage projects by default")
	}

	withCapability(t, model.RoleLaboratoryTech, CapManageProjects)
	if !CanManageProject(nil, labTech) {
		t.Error("CapManageProjects in the table should allow managing without membership")
	}
	if !CanManageAnyProject(labTech) {
		t.Error("CanManageAnyProject should follow the table")
	}

	m := &model.ProjectMembership{ProjectID: "p1", UserID: "u1", Roles: labTech}
	if CanManageProject(m, nil) {
		t.Error("CapManageProjects must not apply to membership roles")
	}
	withCapability(t, model.RoleLaboratoryTech, CapManageJoinedProject)
	if !CanManageProject(m, nil) {
		t.Error("CapManageJoinedProject in the table should allow managing as a member")
	}
}

func TestCapCompleteAnyTask_OnlyOrganizationAdmins(t *testing.T) {
	for _, r := range model.AllRoles() {
		want := r == model.RoleCoordinator || r == model.RoleManager
		if got := PermissionsFor([]model.Role{r}).Has(CapCompleteAnyTask); got != want {
			t.Errorf("%s CapCompleteAnyTask = %v, want %v", r, got, want)
		}
	}
}

func TestCanApproveTask_CoordinatorAndManagerAlways(t *testing.T) {
	project := &model.Project{ID: "p1", LeaderID: strPtr("someone-else")}
	for _, r := range []model.Role{model.RoleCoordinator, model.RoleManager} {
		if !CanApproveTask("u1", []model.Role{r}, nil, project) {
			t.Errorf("%s should approve any project task", r)
		}
		if !CanApproveTask("u1", []model.Role{r}, nil, nil) {
			t.Errorf("%s should approve global tasks", r)
		}
	}
}

func TestCanApproveTask_ProjectManagerMustBeLeader(t *testing.T) {
	leader := "pm-1"
	project := &model.Project{ID: "p1", LeaderID: strPtr(leader)}
	pmMembership := func(userID string) *model.ProjectMembership {
		return &model.ProjectMembership{ProjectID: "p1", UserID: userID, Roles: []model.Role{model.RoleProjectManager}}
	}

	if !CanApproveTask(leader, nil, pmMembership(leader), project) {
		t.Error("leader with project_manager membership should approve")
	}

	// project_manager タグを持つがリーダーではない
	if CanApproveTask("pm-2", []model.Role{model.RoleProjectManager}, pmMembership("pm-2"), project) {
		t.Error("non-leader project_manager must not approve")
	}

	// リーダー本人だがメンバーシップがない
	if CanApproveTask(leader, []model.Role{model.RoleProjectManager}, nil, project) {
		t.Error("leader without membership must not approve")
	}

	// 別プロジェクトのリーダー
	other := &model.Project{ID: "p2", LeaderID: strPtr("pm-2")}
	if CanApproveTask(leader, []model.Role{model.RoleProjectManager}, pmMembership(leader), other) {
		t.Error("membership of another project must not authorise approval")
	}

	// リーダーだがproject_managerロールを持たない
	plain := &model.ProjectMembership{ProjectID: "p1", UserID: leader, Roles: []model.Role{model.RoleResearcher}}
	if CanApproveTask(leader, []model.Role{model.RoleResearcher}, plain, project) {
		t.Error("leader without project_manager role must not approve")
	}
}

func TestCanApproveTask_GlobalTaskRequiresAdmin(t *testing.T) {
	m := &model.ProjectMembership{ProjectID: "p1", UserID: "pm-1", Roles: []model.Role{model.RoleProjectManager}}
	if CanApproveTask("pm-1", []model.Role{model.RoleProjectManager}, m, nil) {
		t.Error("project_manager must not approve a global task")
	}
}

func TestIsSelfApproval(t *testing.T) {
	leader := "pm-1"
	project := &model.Project{ID: "p1", LeaderID: strPtr(leader)}
	m := &model.ProjectMembership{ProjectID: "p1", UserID: leader, Roles: []model.Role{model.RoleProjectManager}}
	task := &model.Task{ID: "t1", ProjectID: strPtr("p1"), AssigneeID: strPtr(leader)}

	if !IsSelfApproval(leader, nil, m, task, project) {
		t.Error("leader completing own task should be self-approval")
	}

	other := &model.Task{ID: "t2", ProjectID: strPtr("p1"), AssigneeID: strPtr("vol-1")}
	if IsSelfApproval(leader, nil, m, other, project) {
		t.Error("task assigned to someone else is not self-approval")
	}

	if IsSelfApproval("vol-1", []model.Role{model.RoleVolunteer}, nil, other, project) {
		t.Error("non-leader assignee is not self-approval")
	}
}

func TestCanModifyCompletedTask(t *testing.T) {
	project := &model.Project{ID: "p1", LeaderID: strPtr("lead"), CreatedBy: "creator"}

	for _, r := range []model.Role{model.RoleCoordinator, model.RoleManager, model.RoleProjectManager, model.RoleLaboratoryTech} {
		if !CanModifyCompletedTask("x", []model.Role{r}, nil) {
			t.Errorf("%s should modify completed tasks", r)
		}
	}
	if !CanModifyCompletedTask("lead", []model.Role{model.RoleVolunteer}, project) {
		t.Error("project leader should modify completed tasks")
	}
	if !CanModifyCompletedTask("creator", []model.Role{model.RoleVolunteer}, project) {
		t.Error("project creator should modify completed tasks")
	}
	if CanModifyCompletedTask("vol", []model.Role{model.RoleVolunteer, model.RoleResearcher}, project) {
		t.Error("volunteer/researcher must not modify completed tasks")
	}
}

func TestPrimaryRole_DisplayOrder(t *testing.T) {
	tests := []struct {
		roles []model.Role
		want  model.Role
	}{
		{[]model.Role{model.RoleVolunteer, model.RoleCoordinator}, model.RoleCoordinator},
		{[]model.Role{model.RoleResearcher, model.RoleProjectManager}, model.RoleProjectManager},
		{[]model.Role{model.RoleProjectManager, model.RoleLaboratoryTech}, model.RoleLaboratoryTech},
		{[]model.Role{model.RoleCollaborator, model.RoleVolunteer}, model.RoleCollaborator},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := PrimaryRole(tt.roles); got != tt.want {
			t.Errorf("PrimaryRole(%v) = %q, want %q", tt.roles, got, tt.want)
		}
	}
}

// 表示優先度が高くても能力表にない権限は得られないことを確認する
func TestPrimaryRole_NotUsedForAuthorization(t *testing.T) {
	roles := []model.Role{model.RoleLaboratoryTech}
	if PrimaryRole(roles) != model.RoleLaboratoryTech {
		t.Fatal("unexpected primary role")
	}
	// laboratory_tech は project_manager より表示優先度が高いが、承認権限は持たない
	project := &model.Project{ID: "p1", LeaderID: strPtr("lt-1")}
	m := &model.ProjectMembership{ProjectID: "p1", UserID: "lt-1", Roles: roles}
	if CanApproveTask("lt-1", roles, m, project) {
		t.Error("laboratory_tech leader without project_manager must not approve")
	}
}

func TestValidateRoles(t *testing.T) {
	roles, err := ValidateRoles([]string{"volunteer", "manager", "volunteer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("len(roles) = %d, want 2 (duplicates removed)", len(roles))
	}

	if _, err := ValidateRoles(nil); !model.HasCategory(err, model.CategoryValidation) {
		t.Errorf("empty roles: expected validation error, got %v", err)
	}
	if _, err := ValidateRoles([]string{"wizard"}); !model.HasCategory(err, model.CategoryValidation) {
		t.Errorf("unknown role: expected validation error, got %v", err)
	}
}
