package access

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-portals/core/user"
)

func TestPortalOf(t *testing.T) {
	tests := []struct {
		path   string
		want   Portal
		wantOk bool
	}{
		{path: "/", want: PortalPublic},
		{path: "/login", want: PortalPublic},
		{path: "/admin", want: PortalAdmin, wantOk: true},
		{path: "/admin/users", want: PortalAdmin, wantOk: true},
		{path: "/admin/unknown/deep", want: PortalAdmin, wantOk: true},
		{path: "/administrator", want: PortalPublic},
		{path: "/teacher/calendar", want: PortalTeacher, wantOk: true},
		{path: "/teachers", want: PortalPublic},
		{path: "/student", want: PortalStudent, wantOk: true},
		{path: "/student/homework-materials", want: PortalStudent, wantOk: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := PortalOf(tt.path)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestCanAccess_publicPathsAlwaysAccessible(t *testing.T) {
	roles := append([]user.Role{"", "JANITOR"}, user.AllRoles...)
	for _, r := range publicRoutes {
		for _, role := range roles {
			assert.True(t, CanAccess(r.Path, role), "%s as %q", r.Path, role)
		}
	}
}

func TestCanAccess_adminPathsAdminOnly(t *testing.T) {
	for _, r := range adminRoutes {
		for _, role := range user.AllRoles {
			assert.Equal(t, role == user.RoleAdmin, CanAccess(r.Path, role), "%s as %s", r.Path, role)
		}
	}
}

func TestCanAccess_parentCrossGrant(t *testing.T) {
	for _, r := range studentRoutes {
		assert.True(t, CanAccess(r.Path, user.RoleParent), r.Path)
		assert.True(t, CanAccess(r.Path, user.RoleStudent), r.Path)
		assert.False(t, CanAccess(r.Path, user.RoleTeacher), r.Path)
	}
	for _, r := range append(adminRoutes, teacherRoutes...) {
		assert.False(t, CanAccess(r.Path, user.RoleParent), r.Path)
	}
}

func TestHomeOf(t *testing.T) {
	tests := map[user.Role]string{
		user.RoleAdmin:   "/admin",
		user.RoleTeacher: "/teacher",
		user.RoleStudent: "/student",
		user.RoleParent:  "/student",
		"JANITOR":        "/",
		"":               "/",
	}
	for role, want := range tests {
		assert.Equal(t, want, HomeOf(role), "HomeOf(%q)", role)
	}

	// the home of every role is a place it can access
	for _, role := range user.AllRoles {
		home := HomeOf(role)
		assert.True(t, CanAccess(home, role), "HomeOf(%s) = %s", role, home)
		assert.True(t, strings.HasPrefix(home, "/"))
	}
}

func TestPortalRoutes(t *testing.T) {
	assert.Equal(t, adminRoutes, PortalRoutes(user.RoleAdmin))
	assert.Equal(t, teacherRoutes, PortalRoutes(user.RoleTeacher))
	assert.Equal(t, studentRoutes, PortalRoutes(user.RoleStudent))
	assert.Equal(t, studentRoutes, PortalRoutes(user.RoleParent))
	assert.Equal(t, publicRoutes, PortalRoutes("JANITOR"))

	routes := PortalRoutes(user.RoleAdmin)
	routes[0].Title = "changed"
	assert.Equal(t, "Dashboard", adminRoutes[0].Title)
}

func TestLookup(t *testing.T) {
	r, ok := Lookup("/student/marks")
	assert.True(t, ok)
	assert.Equal(t, "Marks", r.Title)

	_, ok = Lookup("/admin/unknown")
	assert.False(t, ok)
}
