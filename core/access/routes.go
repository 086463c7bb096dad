// Package access maps roles to portal sections and decides what happens on navigation.
package access

import (
	"strings"

	"github.com/trezcool/masomo-portals/core/user"
)

// Portal is a top-level section of the application.
type Portal string

// Portals
const (
	PortalPublic  Portal = "PUBLIC"
	PortalAdmin   Portal = "ADMIN"
	PortalTeacher Portal = "TEACHER"
	PortalStudent Portal = "STUDENT"
)

// Route is a navigable leaf of a portal.
type Route struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

var (
	publicRoutes = []Route{
		{"/", "Home"},
		{"/login", "Sign In"},
		{"/logout", "Sign Out"},
		{"/forgot-password", "Forgot Password"},
		{"/help", "Help"},
		{"/403", "Access Denied"},
		{"/404", "Page Not Found"},
	}
	adminRoutes = []Route{
		{"/admin", "Dashboard"},
		{"/admin/users", "Users"},
		{"/admin/classes", "Classes"},
		{"/admin/subjects", "Subjects"},
		{"/admin/timetable", "Timetable"},
		{"/admin/attendance", "Attendance"},
		{"/admin/assessments", "Assessments"},
		{"/admin/homework", "Homework"},
		{"/admin/materials", "Materials"},
		{"/admin/announcements", "Announcements"},
		{"/admin/fees", "Fees"},
		{"/admin/appointments", "Appointments"},
		{"/admin/complaints", "Complaints"},
		{"/admin/analytics", "Analytics"},
		{"/admin/settings", "Settings"},
	}
	teacherRoutes = []Route{
		{"/teacher", "Dashboard"},
		{"/teacher/classes", "My Classes"},
		{"/teacher/attendance", "Attendance"},
		{"/teacher/assessments", "Assessments"},
		{"/teacher/homework", "Homework"},
		{"/teacher/materials", "Materials"},
		{"/teacher/announcements", "Announcements"},
		{"/teacher/appointments", "Appointments"},
		{"/teacher/messages", "Messages"},
		{"/teacher/calendar", "Calendar"},
	}
	studentRoutes = []Route{
		{"/student", "Dashboard"},
		{"/student/attendance", "Attendance"},
		{"/student/marks", "Marks"},
		{"/student/homework-materials", "Homework & Materials"},
		{"/student/announcements", "Announcements"},
		{"/student/appointments", "Appointments"},
		{"/student/fees", "Fees"},
		{"/student/messages", "Messages"},
		{"/student/calendar", "Calendar"},
	}

	// ordered by decreasing prefix length; roots are disjoint.
	portalPrefixes = []struct {
		prefix string
		portal Portal
	}{
		{"/teacher", PortalTeacher},
		{"/student", PortalStudent},
		{"/admin", PortalAdmin},
	}

	routeTable = map[Portal][]Route{
		PortalPublic:  publicRoutes,
		PortalAdmin:   adminRoutes,
		PortalTeacher: teacherRoutes,
		PortalStudent: studentRoutes,
	}
	routeIndex = buildRouteIndex()
)

func buildRouteIndex() map[string]Route {
	idx := make(map[string]Route)
	for _, routes := range routeTable {
		for _, r := range routes {
			idx[r.Path] = r
		}
	}
	return idx
}

// Root returns the root path of a portal ("/" for PUBLIC).
func (p Portal) Root() string {
	switch p {
	case PortalAdmin:
		return "/admin"
	case PortalTeacher:
		return "/teacher"
	case PortalStudent:
		return "/student"
	}
	return "/"
}

// PortalOf returns the portal owning path. ok is false (and the portal PUBLIC) when no portal root matches.
// Any path under a root belongs to that portal, whether the leaf exists or not.
func PortalOf(path string) (Portal, bool) {
	for _, pp := range portalPrefixes {
		if path == pp.prefix || strings.HasPrefix(path, pp.prefix+"/") {
			return pp.portal, true
		}
	}
	return PortalPublic, false
}

// CanAccess reports whether a holder of role may navigate to path.
// Parents are granted the student portal.
func CanAccess(path string, role user.Role) bool {
	portal, _ := PortalOf(path)
	switch portal {
	case PortalPublic:
		return true
	case PortalStudent:
		if role == user.RoleParent {
			return true
		}
	}
	return string(portal) == string(role)
}

// HomeOf returns the landing path of role.
func HomeOf(role user.Role) string {
	switch role {
	case user.RoleAdmin:
		return PortalAdmin.Root()
	case user.RoleTeacher:
		return PortalTeacher.Root()
	case user.RoleStudent, user.RoleParent:
		return PortalStudent.Root()
	}
	return "/"
}

// PortalRoutes returns the navigation list of role.
func PortalRoutes(role user.Role) []Route {
	var portal Portal
	switch role {
	case user.RoleAdmin:
		portal = PortalAdmin
	case user.RoleTeacher:
		portal = PortalTeacher
	case user.RoleStudent, user.RoleParent:
		portal = PortalStudent
	default:
		portal = PortalPublic
	}
	routes := routeTable[portal]
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Lookup finds the route declared for the exact path.
func Lookup(path string) (Route, bool) {
	r, ok := routeIndex[path]
	return r, ok
}

// AllRoutes returns every declared route, grouped by portal.
func AllRoutes() map[Portal][]Route {
	out := make(map[Portal][]Route, len(routeTable))
	for p, routes := range routeTable {
		out[p] = append([]Route(nil), routes...)
	}
	return out
}
