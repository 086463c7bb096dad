package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-portals/core/access"
	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

// page kinds
const (
	pageLoading      = "loading"
	pageAuthForm     = "auth-form"
	pageAccessDenied = "access-denied"
	pageNotFound     = "not-found"
	pagePortal       = "portal"
	pagePublic       = "public"
	pageLogin        = "login"
)

type (
	// page tells the frontend what to render for a navigation.
	page struct {
		Page      string         `json:"page"`
		Path      string         `json:"path,omitempty"`
		Title     string         `json:"title,omitempty"`
		Portal    access.Portal  `json:"portal,omitempty"`
		Role      user.Role      `json:"role,omitempty"`
		Nav       []access.Route `json:"nav,omitempty"`
		DemoRoles []user.Role    `json:"demo_roles,omitempty"`
	}

	// sessionResponse is the browser's view of a session.State; the access token stays server side.
	sessionResponse struct {
		User      *session.User  `json:"user"`
		Profile   *user.Profile  `json:"profile"`
		Loading   bool           `json:"loading"`
		Status    session.Status `json:"status"`
		ExpiresAt *time.Time     `json:"expires_at,omitempty"`
		Home      string         `json:"home,omitempty"`
	}

	routesResponse struct {
		Portal access.Portal  `json:"portal"`
		Home   string         `json:"home"`
		Routes []access.Route `json:"routes"`
	}
)

func newSessionResponse(st session.State) sessionResponse {
	resp := sessionResponse{
		User:    st.User,
		Profile: st.Profile,
		Loading: st.Loading,
		Status:  st.Status,
	}
	if st.Session != nil {
		exp := st.Session.ExpiresAt
		resp.ExpiresAt = &exp
	}
	if st.Profile != nil {
		resp.Home = access.HomeOf(st.Profile.Role)
	}
	return resp
}

func registerPortalRoutes(g *echo.Group, s *Server) {
	g.GET("/", s.home)
	g.GET("/logout", s.logoutPage)
	for _, r := range access.AllRoutes()[access.PortalPublic] {
		if r.Path == "/" || r.Path == "/logout" {
			continue
		}
		g.GET(r.Path, s.publicPage)
	}

	for _, portal := range []access.Portal{access.PortalAdmin, access.PortalTeacher, access.PortalStudent} {
		pg := g.Group(portal.Root(), s.pathGuardMiddleware, s.roleListGuardMiddleware(access.AllowedRoles(portal)...))
		pg.GET("", s.portalPage)
		pg.GET("/*", s.portalPage)
	}
}

func registerSessionAPI(g *echo.Group, s *Server) {
	g.GET("/session", s.getSession)
	g.GET("/session/events", s.sessionEvents)
	g.GET("/portal/routes", s.portalRoutes)
	g.GET("/notifications", s.notifications)
}

// home routes a signed in user to their portal, and shows the login chooser otherwise.
func (s *Server) home(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	st := inst.provider.State()
	switch {
	case st.Loading:
		return ctx.JSON(http.StatusAccepted, page{Page: pageLoading})
	case st.Profile != nil:
		return ctx.Redirect(http.StatusFound, access.HomeOf(st.Profile.Role))
	}

	p := page{Page: pageLogin, Path: "/", Title: "Home"}
	if s.conf.DemoMode {
		p.DemoRoles = append([]user.Role(nil), user.AllRoles...)
	}
	return ctx.JSON(http.StatusOK, p)
}

func (s *Server) publicPage(ctx echo.Context) error {
	path := ctx.Request().URL.Path
	r, _ := access.Lookup(path)
	return ctx.JSON(http.StatusOK, page{Page: pagePublic, Path: path, Title: r.Title, Portal: access.PortalPublic})
}

func (s *Server) logoutPage(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}
	err = inst.provider.SignOut(ctx.Request().Context())
	s.metrics.authOp("sign_out", err)
	if err != nil {
		return err
	}
	return ctx.Redirect(http.StatusFound, "/login")
}

// portalPage renders a portal leaf; it only runs once both guards allowed the navigation.
func (s *Server) portalPage(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	path := ctx.Request().URL.Path
	r, ok := access.Lookup(path)
	if !ok {
		return ctx.JSON(http.StatusNotFound, page{Page: pageNotFound, Path: path})
	}

	portal, _ := access.PortalOf(path)
	p := page{Page: pagePortal, Path: path, Title: r.Title, Portal: portal}
	if prof := inst.provider.State().Profile; prof != nil {
		p.Role = prof.Role
		p.Nav = access.PortalRoutes(prof.Role)
	}
	return ctx.JSON(http.StatusOK, p)
}

func (s *Server) getSession(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(inst.provider.State()))
}

// portalRoutes lists the navigation of the signed in user; the public routes when nobody is.
func (s *Server) portalRoutes(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	resp := routesResponse{Portal: access.PortalPublic, Home: "/"}
	var role user.Role
	if prof := inst.provider.State().Profile; prof != nil {
		role = prof.Role
		resp.Home = access.HomeOf(role)
		resp.Portal, _ = access.PortalOf(resp.Home)
	}
	resp.Routes = access.PortalRoutes(role)
	return ctx.JSON(http.StatusOK, resp)
}

// notifications drains the notifications queued for the instance.
func (s *Server) notifications(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst.drain())
}
