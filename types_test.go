package commentguard

import (
	"testing"
	"time"
)

func TestPlatformValid(t *testing.T) {
	tests := []struct {
		platform Platform
		want     bool
	}{
		{PlatformInstagram, true},
		{PlatformTikTok, true},
		{PlatformFacebook, true},
		{Platform("twitter"), false},
		{Platform(""), false},
		{Platform("Instagram"), false},
	}

	for _, tt := range tests {
		if got := tt.platform.Valid(); got != tt.want {
			t.Errorf("Platform(%q).Valid() = %v, want %v", tt.platform, got, tt.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected, StatusSpam, StatusDeleted} {
		if !s.Valid() {
			t.Errorf("Status(%q).Valid() = false, want true", s)
		}
	}
	for _, s := range []Status{"published", "", "PENDING"} {
		if s.Valid() {
			t.Errorf("Status(%q).Valid() = true, want false", s)
		}
	}
}

func TestStatusIsModerationTarget(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusApproved, true},
		{StatusRejected, true},
		{StatusSpam, true},
		{StatusPending, false},
		{StatusDeleted, false},
		{Status("published"), false},
	}

	for _, tt := range tests {
		if got := tt.status.IsModerationTarget(); got != tt.want {
			t.Errorf("Status(%q).IsModerationTarget() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "user"},
		{RoleModerator, "moderator"},
		{RoleSuperAdmin, "super_admin"},
		{Role(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestPrincipalPrivilege(t *testing.T) {
	user := Principal{UserID: "u1", Role: RoleUser}
	mod := Principal{UserID: "m1", Role: RoleModerator}
	admin := Principal{UserID: "a1", Role: RoleSuperAdmin}

	if user.IsModerator() || user.IsSuperAdmin() {
		t.Error("RoleUser must hold no elevated privilege")
	}
	if !mod.IsModerator() {
		t.Error("RoleModerator must satisfy IsModerator")
	}
	if mod.IsSuperAdmin() {
		t.Error("RoleModerator must not satisfy IsSuperAdmin")
	}
	if !admin.IsModerator() || !admin.IsSuperAdmin() {
		t.Error("RoleSuperAdmin must satisfy both privilege checks")
	}
}

func TestCommentIsDeleted(t *testing.T) {
	now := time.Now()
	c := &Comment{Status: StatusApproved}
	if c.IsDeleted() {
		t.Error("approved comment reported as deleted")
	}
	c.Status = StatusDeleted
	c.DeletedAt = &now
	if !c.IsDeleted() {
		t.Error("deleted comment not reported as deleted")
	}
}
