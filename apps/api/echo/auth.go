package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

type (
	loginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	demoLoginRequest struct {
		Role user.Role `json:"role" validate:"required"`
	}

	messageResponse struct {
		Message string `json:"message"`
	}
)

func registerAuthAPI(g *echo.Group, s *Server) {
	ag := g.Group("/auth")

	// TODO: rate limit `/login` & `/signup`
	ag.POST("/signup", s.signUp)
	ag.POST("/login", s.login)
	ag.POST("/logout", s.logout)
	ag.POST("/demo-login", s.demoLogin)
	ag.POST("/token-refresh", s.refreshToken)
	if !s.conf.DemoMode {
		ag.GET("/confirm", s.confirmEmail)
	}
}

func (s *Server) signUp(ctx echo.Context) error {
	var data session.SignUpRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignUpRequest")
	}
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	err = inst.provider.SignUp(ctx.Request().Context(), data)
	s.metrics.authOp("sign_up", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, messageResponse{Message: "Please check your email to confirm your account."})
}

func (s *Server) login(ctx echo.Context) error {
	var data loginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to loginRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := s.validate.Struct(data); err != nil {
		return err
	}
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	err = inst.provider.SignIn(ctx.Request().Context(), data.Email, data.Password)
	s.metrics.authOp("sign_in", err)
	if err != nil {
		return err
	}
	return s.respondSettled(ctx, inst)
}

func (s *Server) logout(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}
	err = inst.provider.SignOut(ctx.Request().Context())
	s.metrics.authOp("sign_out", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(inst.provider.State()))
}

func (s *Server) demoLogin(ctx echo.Context) error {
	var data demoLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to demoLoginRequest")
	}
	if err := s.validate.Struct(data); err != nil {
		return err
	}
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	err = inst.provider.DemoLogin(ctx.Request().Context(), data.Role)
	s.metrics.authOp("demo_login", err)
	if err != nil {
		return err
	}
	return s.respondSettled(ctx, inst)
}

// refreshToken re-issues the access token of the instance. Demo sessions are left as they are.
func (s *Server) refreshToken(ctx echo.Context) error {
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}
	if inst.client == nil {
		if !inst.provider.State().IsAuthenticated() {
			return core.ErrNoUser
		}
		return ctx.JSON(http.StatusOK, newSessionResponse(inst.provider.State()))
	}

	_, err = inst.client.Refresh(ctx.Request().Context())
	s.metrics.authOp("token_refresh", err)
	if err != nil {
		return err
	}
	return s.respondSettled(ctx, inst)
}

// confirmEmail is the target of the link sent on sign up.
func (s *Server) confirmEmail(ctx echo.Context) error {
	uid, token := ctx.QueryParam("uid"), ctx.QueryParam("token")
	if uid == "" || token == "" {
		return core.NewValidationError(user.ErrInvalidToken)
	}

	_, err := s.clients.authSvc.ConfirmEmail(ctx.Request().Context(), uid, token)
	s.metrics.authOp("confirm_email", err)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidToken, user.ErrTokenExpired:
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "confirming email")
	}
	return ctx.Redirect(http.StatusFound, "/login?confirmed=1")
}

// respondSettled waits, at most conf.Server.SessionLoadTimeout, for the provider to settle,
// then replies with its state.
func (s *Server) respondSettled(ctx echo.Context, inst *instance) error {
	waitCtx, cancel := context.WithTimeout(ctx.Request().Context(), s.conf.Server.SessionLoadTimeout)
	defer cancel()
	_ = inst.provider.Wait(waitCtx)
	return ctx.JSON(http.StatusOK, newSessionResponse(inst.provider.State()))
}
