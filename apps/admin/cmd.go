package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/masomo-portals/core/auth"
	"github.com/trezcool/masomo-portals/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("no database configured")
)

type commandLine struct {
	db      *sql.DB // nil with the in-memory repositories
	usrSvc  *user.Service
	authSvc *auth.Service
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -role ROLE -first FIRST_NAME -last LAST_NAME - create a confirmed user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset user's password and sign them out")
	fmt.Fprintln(cli.out, "  signout -email EMAIL - sign user out of every session")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status...)")
	fmt.Fprintln(cli.out, "  routes [-role ROLE] - list the portal routes (of ROLE)")
	fmt.Fprintln(cli.out, "  canaccess -path PATH -role ROLE - tell what happens when ROLE navigates to PATH")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", "", "One of ADMIN, TEACHER, STUDENT, PARENT.")
	addUserFirst := addUserCmd.String("first", "", "The user's first name.")
	addUserLast := addUserCmd.String("last", "", "The user's last name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	signOutCmd := flag.NewFlagSet("signout", flag.ContinueOnError)
	signOutEmail := signOutCmd.String("email", "", "The user's email.")

	routesCmd := flag.NewFlagSet("routes", flag.ContinueOnError)
	routesRole := routesCmd.String("role", "", "Only list the routes of this role.")

	canAccessCmd := flag.NewFlagSet("canaccess", flag.ContinueOnError)
	canAccessPath := canAccessCmd.String("path", "", "The navigated path.")
	canAccessRole := canAccessCmd.String("role", "", "The role of the signed in user.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, signOutCmd, routesCmd, canAccessCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserEmail, *addUserRole, *addUserFirst, *addUserLast, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "signout":
		if err := signOutCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *signOutEmail == "" {
			signOutCmd.Usage()
			return errHelp
		}
		return cli.signOut(*signOutEmail)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "routes":
		if err := routesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.routes(*routesRole)
	case "canaccess":
		if err := canAccessCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *canAccessPath == "" || *canAccessRole == "" {
			canAccessCmd.Usage()
			return errHelp
		}
		return cli.canAccess(*canAccessPath, *canAccessRole)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
