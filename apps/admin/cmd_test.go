package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portals/core/user"
	"github.com/trezcool/masomo-portals/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Deps, *bytes.Buffer) {
	deps := testutil.NewDeps(nil)
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		db:      new(sql.DB),
		usrSvc:  deps.Users,
		authSvc: deps.Auth,
		out:     out,
	}, deps, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "notifications", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	t.Run("in-memory database", func(t *testing.T) {
		cli.db = nil
		tt := cliTest{wantErr: errNoDatabase}
		tt.check(t, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, deps, out := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no role", args: []string{"adduser", "-email", "t@test.cd"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "t@test.cd", "-role", "teacher"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-email", "t@test.cd", "-role", "janitor"}, extra: extra{pwd: testutil.StrongPassword}, wantErrStr: "role: invalid role"},
		{name: "create", args: []string{"adduser", "-email", "T@test.cd", "-role", "teacher", "-first", "Jane", "-last", "Doe"}, extra: extra{pwd: testutil.StrongPassword}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	acc, err := deps.Users.GetByEmail(context.Background(), "t@test.cd")
	require.NoError(t, err)
	assert.True(t, acc.IsConfirmed())
	assert.True(t, acc.IsActive)
	assert.Contains(t, out.String(), `created TEACHER "t@test.cd"`)

	// the created user can sign in right away
	_, err = deps.Auth.SignInWithPassword(context.Background(), "t@test.cd", testutil.StrongPassword)
	assert.NoError(t, err)

	t.Run("duplicate", func(t *testing.T) {
		mockPassword(testutil.StrongPassword)
		err := cli.run([]string{"admin", "adduser", "-email", "t@test.cd", "-role", "admin", "-first", "A", "-last", "B"})
		assert.Error(t, err)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, deps, out := setup(t)
	ctx := context.Background()

	usr, _ := testutil.CreateUser(t, deps, "awe@test.cd", user.RoleStudent)
	_, err := deps.Auth.SignInWithPassword(ctx, usr.Email, testutil.StrongPassword)
	require.NoError(t, err)

	var revoked []string
	unsubscribe := deps.Bus.Subscribe(func(id string) { revoked = append(revoked, id) })
	defer unsubscribe()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "N3w$ecret!"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "N3w$ecret!"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				refreshedUsr, err := deps.Users.GetByID(ctx, usr.ID)
				require.NoError(t, err)
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			}
		})
	}

	assert.Len(t, revoked, 1)
	assert.Contains(t, out.String(), "1 session(s) revoked")

	_, err = deps.Auth.SignInWithPassword(ctx, usr.Email, testutil.StrongPassword)
	assert.Error(t, err)
	_, err = deps.Auth.SignInWithPassword(ctx, usr.Email, "N3w$ecret!")
	assert.NoError(t, err)
}

func Test_commandLine_signOut(t *testing.T) {
	cli, deps, out := setup(t)
	ctx := context.Background()

	usr, _ := testutil.CreateUser(t, deps, "sign@test.cd", user.RoleParent)
	for i := 0; i < 2; i++ {
		_, err := deps.Auth.SignInWithPassword(ctx, usr.Email, testutil.StrongPassword)
		require.NoError(t, err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"signout"}, wantErr: errHelp},
		{name: "user not found", args: []string{"signout", "-email", "lol@test.cd"}, wantErr: user.ErrNotFound},
		{name: "sign out", args: []string{"signout", "-email", usr.Email}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Contains(t, out.String(), `2 session(s) of "sign@test.cd" revoked`)
}

func Test_commandLine_routes(t *testing.T) {
	cli, _, out := setup(t)

	require.NoError(t, cli.run([]string{"admin", "routes", "-role", "parent"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, []string{"home", "/student"}, strings.Fields(lines[0]))
	assert.NotContains(t, out.String(), "/admin")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "routes"}))
	for _, s := range []string{"PUBLIC", "ADMIN", "TEACHER", "STUDENT", "/admin/users"} {
		assert.Contains(t, out.String(), s)
	}

	assert.EqualError(t, cli.run([]string{"admin", "routes", "-role", "lol"}), "role: invalid role")
}

func Test_commandLine_canAccess(t *testing.T) {
	cli, _, out := setup(t)

	tests := []struct {
		cliTest
		want string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"canaccess"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "invalid role", args: []string{"canaccess", "-path", "/admin", "-role", "lol"}, wantErrStr: "role: invalid role"}},
		{cliTest: cliTest{name: "own portal", args: []string{"canaccess", "-path", "/admin/users", "-role", "ADMIN"}}, want: "allow"},
		{cliTest: cliTest{name: "public page", args: []string{"canaccess", "-path", "/help", "-role", "student"}}, want: "allow"},
		{cliTest: cliTest{name: "foreign portal", args: []string{"canaccess", "-path", "/admin", "-role", "teacher"}}, want: "redirect /teacher"},
		{cliTest: cliTest{name: "parent in the student portal", args: []string{"canaccess", "-path", "/student", "-role", "parent"}}, want: "allow"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(args))
			if tt.want != "" {
				assert.Equal(t, tt.want, strings.TrimSpace(out.String()))
			}
		})
	}
}
