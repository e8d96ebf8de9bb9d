package main

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
	inmemdb "github.com/quizzq/backend/storage/database/inmem"
	testutil "github.com/quizzq/backend/tests"
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	usrRepo := inmemdb.NewUserRepository(inmemdb.Open())
	readPasswordFunc = func(int) ([]byte, error) { return nil, nil }
	return &commandLine{
		usrRepo: usrRepo,
		meter:   usage.NewMeter(usrRepo, usage.DefaultPolicy, time.UTC),
	}
}

func withPassword(pwd string) {
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPassword(tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_help(t *testing.T) {
	runCLITests(t, setup(t), []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
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

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "quizzes", "sql"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email missing", args: []string{"adduser", "-username", "root"}, pwd: "Qu1zz@Pass!", wantErr: errHelp},
		{name: "password missing", args: []string{"adduser", "-username", "root", "-email", "root@quizzq.cd"}, wantErr: errHelp},
		{name: "superadmin", args: []string{"adduser", "-username", " Root ", "-email", "root@quizzq.cd", "-superadmin"}, pwd: "Qu1zz@Pass!"},
		{name: "member", args: []string{"adduser", "-username", "kid", "-email", "kid@gmail.com"}, pwd: "Zebra#Lamp42"},
	})

	root, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "root"})
	require.NoError(t, err)
	assert.Equal(t, policy.RoleSuperAdmin, root.Role)
	assert.Empty(t, root.SchoolID)
	assert.True(t, root.IsActive)
	assert.NoError(t, root.CheckPassword("Qu1zz@Pass!"))

	kid, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "kid@gmail.com"})
	require.NoError(t, err)
	assert.Equal(t, policy.RoleMember, kid.Role)
	assert.Equal(t, usage.TierFree, kid.Tier)

	t.Run("promote an existing user", func(t *testing.T) {
		teacher := testutil.CreateUser(t, cli.usrRepo, testutil.UserFixture{
			Name: "Teacher", Username: "teacher", Email: "teacher@wima.cd", Role: policy.RoleTeacher, SchoolID: "wima", Inactive: true,
		})
		withPassword("N3w#Secret")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "teacher", "-email", "teacher@wima.cd", "-superadmin"}))

		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, policy.RoleSuperAdmin, usr.Role)
		assert.Empty(t, usr.SchoolID, "superadmins belong to no school")
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("N3w#Secret"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, testutil.UserFixture{Name: "User", Username: "awe", Email: "awe@test.cd", Password: "mdr"})

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: "lol"},
	})
	refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lol"))

	runCLITests(t, cli, []cliTest{
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, pwd: "lmao"},
	})
	refreshed, err = cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}

func Test_commandLine_setPlan(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, cli.usrRepo, testutil.UserFixture{Name: "Student", Username: "student", Email: "student@wima.cd"})

	report := func() usage.Report {
		t.Helper()
		got, err := cli.usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		r, err := cli.meter.Report(ctx, got.ID, got.Tier)
		require.NoError(t, err)
		return r
	}

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"setplan"}, wantErr: errHelp},
		{name: "tier missing", args: []string{"setplan", "-username", "student"}, wantErr: errHelp},
		{name: "unknown tier", args: []string{"setplan", "-username", "student", "-tier", "gold"}, wantErr: errInvalidTier},
		{name: "user not found", args: []string{"setplan", "-username", "lol", "-tier", "pro"}, wantErr: user.ErrNotFound},
	})

	testutil.ConsumeN(t, cli.meter, usr, 3)

	t.Run("keep usage", func(t *testing.T) {
		require.NoError(t, cli.run([]string{"admin", "setplan", "-username", "student", "-tier", "PRO", "-keep-usage"}))
		r := report()
		assert.Equal(t, usage.TierPro, r.Tier)
		assert.Equal(t, 3, r.Monthly)
		assert.Equal(t, 997, r.Remaining)
	})

	t.Run("fresh quota", func(t *testing.T) {
		require.NoError(t, cli.run([]string{"admin", "setplan", "-username", "student@wima.cd", "-tier", "forever"}))
		r := report()
		assert.Equal(t, usage.TierForever, r.Tier)
		assert.Equal(t, 0, r.Monthly)
		assert.EqualValues(t, 3, r.Lifetime)
		assert.Equal(t, -1, r.Remaining)
	})
}
