package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core"
	"github.com/masomo/feeledger/core/fee"
	"github.com/masomo/feeledger/core/user"
	"github.com/masomo/feeledger/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	return &commandLine{
		usrSvc: env.UserSvc,
		feeSvc: env.FeeSvc,
		out:    out,
	}, env, out
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
		if errors.Cause(err) != tt.wantErr {
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

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	t.Run("in-memory database", func(t *testing.T) {
		assert.Equal(t, errNoSQL, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli.db = new(sql.DB) // never used by the mock
	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		if dir != "migrations" {
			return fmt.Errorf("unexpected dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
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
		{name: "create", args: []string{"migrate", "create", "fee_discounts", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, _ := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "owner"}, wantErr: errHelp},
		{name: "created", args: []string{"adduser", "-username", "owner", "-email", "owner@test.cd", "-admin"}, extra: extra{pwd: "Kw7!fee-ledger"}},
		{name: "updated", args: []string{"adduser", "-email", "owner@test.cd"}, extra: extra{pwd: "An0ther-pass!"}},
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

	usr, err := env.UserSvc.Authenticate(context.Background(), "owner", "An0ther-pass!")
	require.NoError(t, err)
	assert.True(t, usr.IsFeeManager())

	t.Run("weak password", func(t *testing.T) {
		mockPassword("12345678")
		err := cli.run([]string{"admin", "adduser", "-username", "clerk"})
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr), "err = %v", err)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env, _ := setup(t)
	usr := testutil.CreateUser(t, env.UserRepo, "User", "awe", "awe@test.cd", "s3cr3t-pass", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "Kw7!fee-ledger"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "Kw7!fee-ledger"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "An0ther-pass!"}},
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
				refreshed, err := env.UserSvc.GetByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
				assert.Empty(t, refreshed.Roles)
			}
		})
	}
}

func Test_commandLine_reports(t *testing.T) {
	cli, env, out := setup(t)
	ctx := context.Background()

	class := env.AddClass(t, "Grade 5", "2024")
	env.AddStudent(t, class.ID, "0")
	cat := env.CreateCategory(t, "Tuition")
	st := env.CreateStructure(t, class.ID, cat.ID, "500", testutil.NextMonth())
	summary, err := env.FeeSvc.AssignToClass(ctx, fee.Assignment{ClassID: class.ID, StructureID: st.ID}, fee.Actor{ID: "admin"})
	require.NoError(t, err)
	require.Len(t, summary.Ledgers, 1)
	_, err = env.FeeSvc.Collect(ctx, fee.Payment{
		LedgerID: summary.Ledgers[0].ID,
		Amount:   decimal.NewFromInt(120),
		Method:   fee.MethodCash,
	}, fee.Actor{ID: "bursar"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     []string
		wantErr  bool
		wantOuts []string
	}{
		{name: "no kind", args: []string{"report"}, wantErr: true},
		{name: "unknown kind", args: []string{"report", "weekly"}, wantErr: true},
		{name: "bad date", args: []string{"report", "daily", "-date", "2024/01/02"}, wantErr: true},
		{name: "daily", args: []string{"report", "daily"}, wantOuts: []string{"Transactions:  1", "Total:", "120.00", "Cash:", "Online:", "0.00"}},
		{name: "daily (other day)", args: []string{"report", "daily", "-date", "2001-01-01"}, wantOuts: []string{"Collection of 2001-01-01", "Transactions:  0"}},
		{name: "pending", args: []string{"report", "pending"}, wantOuts: []string{"Grade 5", "380.00", "Total"}},
		{name: "refresh statuses", args: []string{"refresh-statuses"}, wantOuts: []string{"0 ledger row(s) refreshed"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.wantOuts {
				assert.True(t, strings.Contains(out.String(), want), "output %q does not contain %q", out.String(), want)
			}
		})
	}
}
