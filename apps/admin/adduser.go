package main

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/user"
)

// addUser creates a confirmed, active user in the configured school.
func (cli *commandLine) addUser(email, role, first, last, pwd string) error {
	r, ok := user.ParseRole(role)
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}
	acc, prof, err := cli.authSvc.AddUser(context.Background(), user.NewAccount{
		Email:     email,
		Password:  pwd,
		FirstName: first,
		LastName:  last,
		Role:      r,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %q (%s)\n", prof.Role, acc.Email, acc.ID)
	return nil
}
