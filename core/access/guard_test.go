package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

func TestPathGuard(t *testing.T) {
	teacher := &user.Profile{Role: user.RoleTeacher}
	parent := &user.Profile{Role: user.RoleParent}

	tests := []struct {
		name    string
		path    string
		profile *user.Profile
		want    Decision
	}{
		{name: "no profile is a no-op", path: "/admin/users", want: Decision{Kind: Allow}},
		{name: "own portal", path: "/teacher/classes", profile: teacher, want: Decision{Kind: Allow}},
		{name: "public", path: "/help", profile: teacher, want: Decision{Kind: Allow}},
		{
			name: "teacher to admin", path: "/admin", profile: teacher,
			want: Decision{Kind: Redirect, Location: "/teacher", Replace: true},
		},
		{name: "parent to student", path: "/student/fees", profile: parent, want: Decision{Kind: Allow}},
		{
			name: "parent to teacher", path: "/teacher", profile: parent,
			want: Decision{Kind: Redirect, Location: "/student", Replace: true},
		},
		{
			name: "unknown leaf still guarded", path: "/admin/nope", profile: teacher,
			want: Decision{Kind: Redirect, Location: "/teacher", Replace: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PathGuard(tt.path, tt.profile))
		})
	}
}

func TestRoleListGuard(t *testing.T) {
	usr := &session.User{ID: "u1"}
	admin := &user.Profile{Role: user.RoleAdmin}
	teacher := &user.Profile{Role: user.RoleTeacher}
	adminOnly := AllowedRoles(PortalAdmin)

	tests := []struct {
		name string
		st   session.State
		want Decision
	}{
		{name: "loading", st: session.State{Loading: true}, want: Decision{Kind: Loading}},
		{name: "loading wins over profile", st: session.State{Loading: true, User: usr, Profile: admin}, want: Decision{Kind: Loading}},
		{name: "anonymous", st: session.State{}, want: Decision{Kind: AuthForm}},
		{name: "profile missing", st: session.State{User: usr}, want: Decision{Kind: AuthForm}},
		{name: "wrong role", st: session.State{User: usr, Profile: teacher}, want: Decision{Kind: Denied, Role: user.RoleTeacher}},
		{name: "allowed", st: session.State{User: usr, Profile: admin}, want: Decision{Kind: Allow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleListGuard(adminOnly, tt.st))
		})
	}
}

func TestAllowedRoles(t *testing.T) {
	assert.ElementsMatch(t, []user.Role{user.RoleStudent, user.RoleParent}, AllowedRoles(PortalStudent))
	assert.ElementsMatch(t, user.AllRoles, AllowedRoles(PortalPublic))
}

func TestDecisionKind_String(t *testing.T) {
	assert.Equal(t, "auth-form", AuthForm.String())
	assert.Equal(t, "unknown", DecisionKind(42).String())
}

func TestGuards_demoTeacher(t *testing.T) {
	p := session.NewDemoAuth(nil, nopLogger{})
	p.Init(context.Background())
	require.NoError(t, p.DemoLogin(context.Background(), user.RoleTeacher))
	st := p.State()

	assert.True(t, CanAccess("/teacher", st.Profile.Role))
	assert.Equal(t, Decision{Kind: Allow}, PathGuard("/teacher", st.Profile))
	assert.Equal(t, Decision{Kind: Allow}, RoleListGuard(AllowedRoles(PortalTeacher), st))
	assert.Equal(t, Decision{Kind: Redirect, Location: "/teacher", Replace: true}, PathGuard("/admin", st.Profile))

	require.NoError(t, p.SignOut(context.Background()))
	st = p.State()
	assert.Equal(t, Decision{Kind: Allow}, PathGuard("/admin/users", st.Profile))
	assert.Equal(t, Decision{Kind: AuthForm}, RoleListGuard(AllowedRoles(PortalAdmin), st))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
