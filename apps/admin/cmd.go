package main

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	svc        *principal.Service
	catalog    unit.Catalog
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := cli.newRootCmd()
	root.SetArgs(args[1:])
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.Execute()
}

func (cli *commandLine) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Masomo Audit administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.AddCommand(
		cli.newMigrateCmd(),
		cli.newAddUserCmd(),
		cli.newResetPasswordCmd(),
		cli.newGrantCmd("grant", "Grant a unit to an admin"),
		cli.newGrantCmd("revoke", "Revoke a unit from an admin"),
		cli.newSetActiveCmd("activate", true),
		cli.newSetActiveCmd("deactivate", false),
		cli.newUnitCmd(),
	)
	return root
}

// readPassword prompts for a password on the terminal; an empty password prints the usage.
func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

// usageIfEmpty prints the usage when a mandatory flag is missing.
func usageIfEmpty(cmd *cobra.Command, vals ...string) error {
	for _, v := range vals {
		if v == "" {
			_ = cmd.Usage()
			return errHelp
		}
	}
	return nil
}

func (cli *commandLine) validateStruct(v interface{ Validate(*validator.Validate) error }) error {
	if err := v.Validate(cli.validate); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}
	return nil
}
