package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core/access"
	"github.com/trezcool/masomo-portals/core/user"
)

const (
	clientCookieName = "masomo_client"
	instanceKey      = "instance"
)

var errNoInstance = errors.New("application instance not found in echo.Context")

// clientMiddleware attaches the application instance of the browser to the context,
// creating it (and its masomo_client cookie) on first sight.
func (s *Server) clientMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var clientID string
		if cookie, err := ctx.Cookie(clientCookieName); err == nil {
			clientID = cookie.Value
		}

		inst, created := s.clients.get(clientID)
		if inst.id != clientID {
			ctx.SetCookie(&http.Cookie{
				Name:     clientCookieName,
				Value:    inst.id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.conf.Server.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		if created {
			s.clients.init(ctx.Request().Context(), inst)
		} else if !inst.provider.State().Loading {
			// a refreshed session reloads its profile
			s.clients.check(ctx.Request().Context(), inst)
			s.clients.wait(ctx.Request().Context(), inst)
		}

		ctx.Set(instanceKey, inst)
		return next(ctx)
	}
}

func getContextInstance(ctx echo.Context) (*instance, error) {
	if inst, ok := ctx.Get(instanceKey).(*instance); ok {
		return inst, nil
	}
	return nil, errNoInstance
}

// pathGuardMiddleware redirects signed in users away from portals their role may not enter.
func (s *Server) pathGuardMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		inst, err := getContextInstance(ctx)
		if err != nil {
			return err
		}

		dec := access.PathGuard(ctx.Request().URL.Path, inst.provider.State().Profile)
		s.metrics.decision("path", dec.Kind.String())
		if dec.Kind == access.Redirect {
			return ctx.Redirect(http.StatusFound, dec.Location)
		}
		return next(ctx)
	}
}

// roleListGuardMiddleware gates a portal on the session state and its allowed roles.
func (s *Server) roleListGuardMiddleware(allowed ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			inst, err := getContextInstance(ctx)
			if err != nil {
				return err
			}

			dec := access.RoleListGuard(allowed, inst.provider.State())
			s.metrics.decision("role-list", dec.Kind.String())
			switch dec.Kind {
			case access.Loading:
				return ctx.JSON(http.StatusAccepted, page{Page: pageLoading})
			case access.AuthForm:
				return ctx.JSON(http.StatusUnauthorized, page{Page: pageAuthForm})
			case access.Denied:
				return ctx.JSON(http.StatusForbidden, page{Page: pageAccessDenied, Role: dec.Role})
			}
			return next(ctx)
		}
	}
}
