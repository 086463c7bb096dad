package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core/user"
)

func registerProfileAPI(g *echo.Group, s *Server) {
	g.PATCH("/profile", s.updateProfile)
}

// updateProfile merges the provided fields into the profile of the signed in user.
// Roles are managed by administrators only.
func (s *Server) updateProfile(ctx echo.Context) error {
	var data user.ProfileUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProfileUpdate")
	}
	if data.Role != nil {
		return errRoleChange
	}
	if data.IsEmpty() {
		return errEmptyUpdate
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}
	inst, err := getContextInstance(ctx)
	if err != nil {
		return err
	}

	err = inst.provider.UpdateProfile(ctx.Request().Context(), data)
	s.metrics.authOp("update_profile", err)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(inst.provider.State()))
}
