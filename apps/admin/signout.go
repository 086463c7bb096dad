package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) signOut(email string) error {
	ctx := context.Background()
	acc, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	n, err := cli.authSvc.RevokeUserSessions(ctx, acc.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d session(s) of %q revoked\n", n, acc.Email)
	return nil
}
