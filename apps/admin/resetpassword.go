package main

import (
	"context"
	"fmt"
)

// resetPassword sets a new password. Every session opened with the old one is revoked.
func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	acc, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	n, err := cli.authSvc.ResetPassword(ctx, acc, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %q reset, %d session(s) revoked\n", acc.Email, n)
	return nil
}
