package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
	sqlxrepos "github.com/trezcool/masomo-audit/storage/database/sqlx"
	"github.com/trezcool/masomo-audit/tests"
)

var prRepo principal.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	prRepo = sqlxrepos.NewPrincipalRepository(db)
	validate, translator := testutil.NewValidator()

	var out bytes.Buffer
	return &commandLine{
		db:         db,
		svc:        principal.NewService(prRepo),
		catalog:    sqlxrepos.NewUnitCatalog(db),
		validate:   validate,
		translator: translator,
		out:        &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) { return []byte(tt.pwd), nil }

			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "unit without subcommand", args: []string{"unit"}, wantErr: errHelp},
	}, nil)
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
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
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
	}, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	testutil.CreateUnit(t, cli.catalog, unit.KindSchool, 7, false)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--username", "jdoe", "--role", "school_admin"}, wantErr: errHelp},
		{
			name: "invalid role", args: []string{"adduser", "--username", "jdoe", "--role", "teacher"}, pwd: testutil.Password,
			wantErrStr: "role: invalid role",
		},
		{
			name: "weak password", args: []string{"adduser", "--username", "jdoe", "--role", "school_admin"}, pwd: "password",
			wantErrStr: "password: password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		},
		{
			name: "grants of the other scope", args: []string{"adduser", "--username", "jdoe", "--role", "school_admin", "--culture", "3"},
			pwd: testutil.Password, wantErrStr: "culture_ids: grants do not match the role",
		},
		{
			name: "ok", args: []string{"adduser", "--name", "Jane Doe", "--username", "JDoe", "--email", "jane@test.cd", "--role", "school_admin", "--school", "7"},
			pwd: testutil.Password,
		},
		{
			name: "username taken", args: []string{"adduser", "--username", "jdoe", "--role", "super_admin"}, pwd: testutil.Password,
			wantErrStr: "a principal with this username already exists",
		},
	}, func(t *testing.T, tt cliTest) {
		p, err := cli.svc.GetByUsernameOrEmail(context.Background(), "jane@test.cd")
		require.NoError(t, err)
		assert.Equal(t, "jdoe", p.Username)
		assert.Equal(t, "Jane Doe", p.Name)
		assert.Equal(t, principal.RoleSchoolAdmin, p.Role)
		assert.Equal(t, []int64{7}, p.Grants.SchoolIDs)
		assert.NoError(t, p.CheckPassword(testutil.Password))
		assert.Contains(t, out.String(), `created school_admin "jdoe"`)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	p := testutil.CreatePrincipal(t, prRepo, "awe", principal.RoleSuperAdmin, true, principal.Grants{})
	newPwd := "N3w!Secret#42"

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "--username", "lol"}, wantErr: errHelp},
		{name: "weak password", args: []string{"resetpassword", "--username", p.Username}, pwd: "1234", wantErrStr: "password: password must contain at least 8 characters"},
		{name: "principal not found", args: []string{"resetpassword", "--username", "lol"}, pwd: newPwd, wantErrStr: "principal not found"},
		{name: "reset with username", args: []string{"resetpassword", "--username", p.Username}, pwd: newPwd},
		{name: "reset with email", args: []string{"resetpassword", "--username", p.Email}, pwd: newPwd},
	}, func(t *testing.T, tt cliTest) {
		refreshed, err := prRepo.GetPrincipal(context.Background(), principal.GetFilter{ID: p.ID})
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, p.PasswordHash))
		assert.NoError(t, refreshed.CheckPassword(newPwd))
	})
}

func Test_commandLine_grants(t *testing.T) {
	cli, _ := setup(t)
	testutil.CreateUnit(t, cli.catalog, unit.KindSchool, 7, false)
	testutil.CreateUnit(t, cli.catalog, unit.KindCulture, 3, false)
	p := testutil.CreatePrincipal(t, prRepo, "school", principal.RoleSchoolAdmin, true, principal.Grants{})

	grants := func() principal.Grants {
		refreshed, err := prRepo.GetPrincipal(context.Background(), principal.GetFilter{ID: p.ID})
		require.NoError(t, err)
		return refreshed.Grants
	}

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"grant"}, wantErr: errHelp},
		{name: "unknown scope", args: []string{"grant", "--username", "school", "--scope", "lol", "--unit", "7"}, wantErr: errHelp},
		{name: "unknown unit", args: []string{"grant", "--username", "school", "--scope", "school", "--unit", "99"}, wantErrStr: "school not found"},
		{name: "scope mismatch", args: []string{"grant", "--username", "school", "--scope", "culture", "--unit", "3"}, wantErrStr: "scope: grants do not match the role"},
		{name: "unknown principal", args: []string{"grant", "--username", "lol", "--scope", "school", "--unit", "7"}, wantErrStr: "principal not found"},
	}, nil)

	require.NoError(t, cli.run([]string{"admin", "grant", "--username", "school", "--scope", "school", "--unit", "7"}))
	require.NoError(t, cli.run([]string{"admin", "grant", "--username", "school", "--scope", "school", "--unit", "7"}))
	assert.Equal(t, []int64{7}, grants().SchoolIDs)

	require.NoError(t, cli.run([]string{"admin", "revoke", "--username", "school", "--scope", "school", "--unit", "7"}))
	assert.Empty(t, grants().SchoolIDs)
}

func Test_commandLine_setActive(t *testing.T) {
	cli, _ := setup(t)
	p := testutil.CreatePrincipal(t, prRepo, "awe", principal.RoleSuperAdmin, true, principal.Grants{})

	isActive := func() bool {
		refreshed, err := prRepo.GetPrincipal(context.Background(), principal.GetFilter{ID: p.ID})
		require.NoError(t, err)
		return refreshed.IsActive
	}

	assert.Equal(t, errHelp, cli.run([]string{"admin", "deactivate"}))
	require.NoError(t, cli.run([]string{"admin", "deactivate", "--username", "awe"}))
	assert.False(t, isActive())
	_, err := cli.svc.Authenticate(context.Background(), "awe", testutil.Password)
	assert.Equal(t, core.ErrUnauthorized, err)

	require.NoError(t, cli.run([]string{"admin", "activate", "--username", "awe@test.cd"}))
	assert.True(t, isActive())
}

func Test_commandLine_unit(t *testing.T) {
	cli, out := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no kind", args: []string{"unit", "add", "--id", "7", "--name", "Lycee"}, wantErr: errHelp},
		{name: "no id", args: []string{"unit", "add", "--kind", "school", "--name", "Lycee"}, wantErr: errHelp},
		{name: "no name", args: []string{"unit", "add", "--kind", "school", "--id", "7"}, wantErrStr: "name: name is a required field"},
		{
			name: "fee payment without methods", args: []string{"unit", "add", "--kind", "school", "--id", "7", "--name", "Lycee", "--fee-payment"},
			wantErrStr: "methods: fee payment needs at least one payment method",
		},
		{
			name: "ok", args: []string{"unit", "add", "--kind", "School", "--id", "7", "--name", "Lycee", "--location", "Goma", "--fee-payment", "--methods", "Cash,mobile_money"},
		},
		{name: "list without kind", args: []string{"unit", "list"}, wantErr: errHelp},
	}, func(t *testing.T, tt cliTest) {
		u, err := cli.catalog.GetUnit(context.Background(), unit.KindSchool, 7)
		require.NoError(t, err)
		assert.Equal(t, "Lycee", u.Name)
		assert.True(t, u.FeePaymentEnabled)
		assert.True(t, u.AcceptsPaymentMethod("cash"))
		assert.True(t, u.AcceptsPaymentMethod("mobile_money"))
	})

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "unit", "list", "--kind", "school"}))
	assert.Contains(t, out.String(), "7\tLycee\tGoma\tfee_payment=true")
}
