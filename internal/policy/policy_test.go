package policy

import (
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

const (
	actorID = "actor-1"
	otherID = "other-1"
)

// createは認証済みであればロール不問で許可されることを検証
func TestPermit_Create_AnyAuthenticatedActor(t *testing.T) {
	roles := []model.Role{model.RoleUser, model.RoleManager, model.RoleAdmin}
	for _, role := range roles {
		if !Permit(ActionCreate, role, actorID, actorID, role) {
			t.Errorf("Permit(create, %s) = false, want true", role)
		}
	}
}

// 未認証（空のactorID）は全操作が拒否されることを検証
func TestPermit_UnauthenticatedDenied(t *testing.T) {
	actions := []Action{ActionCreate, ActionUpdate, ActionDelete}
	for _, action := range actions {
		if Permit(action, model.RoleAdmin, "", otherID, model.RoleUser) {
			t.Errorf("Permit(%s) with empty actorID = true, want false", action)
		}
	}
}

// update/deleteのロール別判定を網羅的に検証
func TestPermit_UpdateDelete_RoleMatrix(t *testing.T) {
	tests := []struct {
		name      string
		actorRole model.Role
		ownerID   string
		ownerRole model.Role
		want      bool
	}{
		{"admin_own", model.RoleAdmin, actorID, model.RoleAdmin, true},
		{"admin_other_user", model.RoleAdmin, otherID, model.RoleUser, true},
		{"admin_other_manager", model.RoleAdmin, otherID, model.RoleManager, true},
		{"admin_other_admin", model.RoleAdmin, otherID, model.RoleAdmin, true},

		{"manager_own", model.RoleManager, actorID, model.RoleManager, true},
		{"manager_other_user_role", model.RoleManager, otherID, model.RoleUser, true},
		{"manager_other_manager", model.RoleManager, otherID, model.RoleManager, false},
		{"manager_other_admin", model.RoleManager, otherID, model.RoleAdmin, false},

		{"user_own", model.RoleUser, actorID, model.RoleUser, true},
		{"user_other_user", model.RoleUser, otherID, model.RoleUser, false},
		{"user_other_admin", model.RoleUser, otherID, model.RoleAdmin, false},

		{"unknown_role_own", model.Role("guest"), actorID, model.RoleUser, false},
		{"empty_role_own", model.Role(""), actorID, model.RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Permit(ActionUpdate, tt.actorRole, actorID, tt.ownerID, tt.ownerRole)
			if got != tt.want {
				t.Errorf("Permit(update, %s, owner=%s role=%s) = %v, want %v",
					tt.actorRole, tt.ownerID, tt.ownerRole, got, tt.want)
			}
		})
	}
}

// updateとdeleteの判定が全組み合わせで一致することを検証
func TestPermit_UpdateDeleteAgree(t *testing.T) {
	roles := []model.Role{model.RoleUser, model.RoleManager, model.RoleAdmin, model.Role("guest"), model.Role("")}
	owners := []string{actorID, otherID}

	for _, actorRole := range roles {
		for _, ownerID := range owners {
			for _, ownerRole := range roles {
				update := Permit(ActionUpdate, actorRole, actorID, ownerID, ownerRole)
				del := Permit(ActionDelete, actorRole, actorID, ownerID, ownerRole)
				if update != del {
					t.Errorf("update/delete disagree for actor=%s owner=%s ownerRole=%s: update=%v delete=%v",
						actorRole, ownerID, ownerRole, update, del)
				}
			}
		}
	}
}

// managerの判定が所有者ロールに依存することを検証（所有権だけでは決まらない）
func TestPermit_ManagerDependsOnOwnerRole(t *testing.T) {
	// 同じ所有者IDでも、所有者ロールが変わると判定が変わる
	if !Permit(ActionDelete, model.RoleManager, actorID, otherID, model.RoleUser) {
		t.Error("manager should be permitted for user-role owner")
	}
	if Permit(ActionDelete, model.RoleManager, actorID, otherID, model.RoleManager) {
		t.Error("manager should be denied for manager-role owner")
	}
}
