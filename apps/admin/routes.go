package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/access"
	"github.com/trezcool/masomo-portals/core/user"
)

var portalsOrder = []access.Portal{access.PortalPublic, access.PortalAdmin, access.PortalTeacher, access.PortalStudent}

// routes prints the navigation of role, or every route when role is empty.
func (cli *commandLine) routes(role string) error {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if role != "" {
		r, ok := user.ParseRole(role)
		if !ok {
			return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
		}
		fmt.Fprintf(w, "home\t%s\n", access.HomeOf(r))
		for _, route := range access.PortalRoutes(r) {
			fmt.Fprintf(w, "%s\t%s\n", route.Path, route.Title)
		}
		return nil
	}

	all := access.AllRoutes()
	for _, portal := range portalsOrder {
		for _, route := range all[portal] {
			fmt.Fprintf(w, "%s\t%s\t%s\n", portal, route.Path, route.Title)
		}
	}
	return nil
}

// canAccess prints the decision of the path guard when a holder of role navigates to path.
func (cli *commandLine) canAccess(path, role string) error {
	r, ok := user.ParseRole(role)
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}
	dec := access.PathGuard(path, &user.Profile{Role: r})
	switch dec.Kind {
	case access.Redirect:
		fmt.Fprintf(cli.out, "%s %s\n", dec.Kind, dec.Location)
	default:
		fmt.Fprintln(cli.out, dec.Kind)
	}
	return nil
}
