package access

import (
	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

// DecisionKind is the outcome of a guard.
type DecisionKind int

// Decision kinds
const (
	Allow    DecisionKind = iota
	Redirect              // navigate elsewhere
	Loading               // the session is still resolving
	AuthForm              // nobody is signed in
	Denied                // signed in, but the role is not allowed here
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Loading:
		return "loading"
	case AuthForm:
		return "auth-form"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Decision tells the presentation layer what to render for a navigation.
type Decision struct {
	Kind DecisionKind
	// Location and Replace are set for Redirect.
	Location string
	Replace  bool
	// Role is set for Denied.
	Role user.Role
}

// PathGuard redirects a signed in user away from a portal their role may not enter.
// It is a no-op as long as no profile is known.
func PathGuard(path string, profile *user.Profile) Decision {
	if profile == nil {
		return Decision{Kind: Allow}
	}
	if !CanAccess(path, profile.Role) {
		return Decision{Kind: Redirect, Location: HomeOf(profile.Role), Replace: true}
	}
	return Decision{Kind: Allow}
}

// RoleListGuard gates content on the session state and an allow-list of roles.
func RoleListGuard(allowed []user.Role, st session.State) Decision {
	if st.Loading {
		return Decision{Kind: Loading}
	}
	if st.User == nil || st.Profile == nil {
		return Decision{Kind: AuthForm}
	}
	for _, r := range allowed {
		if r == st.Profile.Role {
			return Decision{Kind: Allow}
		}
	}
	return Decision{Kind: Denied, Role: st.Profile.Role}
}

// AllowedRoles returns the roles admitted by the role-list guard of a portal.
func AllowedRoles(portal Portal) []user.Role {
	switch portal {
	case PortalAdmin:
		return []user.Role{user.RoleAdmin}
	case PortalTeacher:
		return []user.Role{user.RoleTeacher}
	case PortalStudent:
		return []user.Role{user.RoleStudent, user.RoleParent}
	}
	return append([]user.Role(nil), user.AllRoles...)
}
