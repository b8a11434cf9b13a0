package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/authz"
	"github.com/yekiapp/yeki/core/user"
	emailsvc "github.com/yekiapp/yeki/services/email"
	inmemdb "github.com/yekiapp/yeki/storage/database/inmem"
	"github.com/yekiapp/yeki/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)
	usrRepo = inmemdb.NewUserRepository(inmemdb.New())
	validate, translator := testutil.NewValidator()

	return &commandLine{
		usrSvc:     user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), logger),
		validate:   validate,
		translator: translator,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

// mockPasswords makes readPasswordFunc return the given inputs in turn.
func mockPasswords(pwds ...string) {
	i := 0
	readPasswordFunc = func(fd int) ([]byte, error) {
		if i >= len(pwds) {
			return nil, nil
		}
		pwd := pwds[i]
		i++
		return []byte(pwd), nil
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"activate", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	gooseRunFunc = func(ctx context.Context, db *sql.DB, command string, args ...string) error {
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
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
	assert.Len(t, ran, 11)
}

func Test_commandLine_createAdmin(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, usrRepo, "Taken", "taken_user", "taken@yeki.test", "", authz.RoleLearner, true)

	type extra struct {
		pwds []string
		kind core.Kind
	}
	args := func(uname, email string) []string {
		return []string{"createadmin", "-name", "Super Admin", "-username", uname, "-email", email}
	}
	tests := []cliTest{
		{name: "no args", args: []string{"createadmin"}, wantErr: errHelp},
		{name: "missing email", args: []string{"createadmin", "-name", "Super Admin", "-username", "super_admin"}, wantErr: errHelp},
		{name: "no password", args: args("super_admin", "admin@yeki.test"), wantErr: errHelp},
		{name: "no confirmation", args: args("super_admin", "admin@yeki.test"), extra: extra{pwds: []string{testutil.Password}}, wantErr: errHelp},
		{
			name:  "passwords mismatch",
			args:  args("super_admin", "admin@yeki.test"),
			extra: extra{pwds: []string{testutil.Password, "lol"}, kind: core.KindValidation},
		},
		{
			name:  "weak password",
			args:  args("super_admin", "admin@yeki.test"),
			extra: extra{pwds: []string{"12345678", "12345678"}, kind: core.KindValidation},
		},
		{
			name:  "invalid email",
			args:  args("super_admin", "lol"),
			extra: extra{pwds: []string{testutil.Password, testutil.Password}, kind: core.KindValidation},
		},
		{
			name:  "username taken",
			args:  args("Taken_User", "admin@yeki.test"),
			extra: extra{pwds: []string{testutil.Password, testutil.Password}, kind: core.KindValidation},
		},
		{name: "create", args: args("Super_Admin", "Admin@yeki.test"), extra: extra{pwds: []string{testutil.Password, testutil.Password}}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		xtra, _ := tt.extra.(extra)
		mockPasswords(xtra.pwds...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case xtra.kind != "":
				require.Error(t, err)
				assert.Equal(t, xtra.kind, core.KindOf(err))
			default:
				require.NoError(t, err)
				usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: "super_admin"})
				require.NoError(t, err)
				assert.Equal(t, authz.RoleAdmin, usr.Role)
				assert.Equal(t, "admin@yeki.test", usr.Email)
				assert.True(t, usr.IsActive)
				assert.NoError(t, usr.CheckPassword(testutil.Password))
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awesome", "awe@yeki.test", "mdr", authz.RoleLearner, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_activate(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "Teacher", "new_teacher", "teacher@yeki.test", "", authz.RoleAssistantTeacher, false)

	tests := []cliTest{
		{name: "no args", args: []string{"activate"}, wantErr: errHelp},
		{name: "user not found", args: []string{"activate", "-username", "lol"}, wantErr: user.ErrNotFound},
		{name: "activate", args: []string{"activate", "-username", "Teacher@yeki.test"}},
		{name: "already active", args: []string{"activate", "-username", usr.Username}, wantErr: user.ErrAlreadyActivated},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.True(t, refreshedUsr.IsActive)
		})
	}
}
