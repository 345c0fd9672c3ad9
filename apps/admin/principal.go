package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-audit/core/principal"
	"github.com/trezcool/masomo-audit/core/unit"
)

func (cli *commandLine) newAddUserCmd() *cobra.Command {
	var (
		np                    principal.NewPrincipal
		role                  string
		schoolIDs, cultureIDs []int64
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create an admin; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := usageIfEmpty(cmd, np.Username, role); err != nil {
				return err
			}
			pwd, err := readPassword(cmd)
			if err != nil {
				return err
			}
			np.Role = principal.Role(role)
			np.Password, np.PasswordConfirm = pwd, pwd
			np.SchoolIDs, np.CultureIDs = schoolIDs, cultureIDs
			if np.Name == "" {
				np.Name = np.Username
			}
			if err = cli.validateStruct(&np); err != nil {
				return err
			}

			p, err := cli.svc.Create(context.Background(), np)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (%s)\n", p.Role, p.Username, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&np.Name, "name", "", "Full name (defaults to the username)")
	cmd.Flags().StringVar(&np.Username, "username", "", "Login username")
	cmd.Flags().StringVar(&np.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&role, "role", "", "super_admin | school_admin | culture_admin")
	cmd.Flags().Int64SliceVar(&schoolIDs, "school", nil, "Granted school ids (school admins)")
	cmd.Flags().Int64SliceVar(&cultureIDs, "culture", nil, "Granted culture category ids (culture admins)")
	return cmd
}

func (cli *commandLine) newResetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset an admin's password; the password is prompted next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := usageIfEmpty(cmd, uname); err != nil {
				return err
			}
			pwd, err := readPassword(cmd)
			if err != nil {
				return err
			}
			rp := principal.ResetPassword{Username: uname, Password: pwd, PasswordConfirm: pwd}
			if err = cli.validateStruct(&rp); err != nil {
				return err
			}
			_, err = cli.svc.ResetPassword(context.Background(), rp)
			return err
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The admin's username or email")
	return cmd
}

// newGrantCmd builds the `grant` and `revoke` commands.
func (cli *commandLine) newGrantCmd(use, short string) *cobra.Command {
	var (
		uname, scope string
		unitID       int64
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := usageIfEmpty(cmd, uname, scope); err != nil {
				return err
			}
			kind := unit.Kind(scope)
			if !kind.Valid() || unitID <= 0 {
				_ = cmd.Usage()
				return errHelp
			}

			ctx := context.Background()
			p, err := cli.svc.GetByUsernameOrEmail(ctx, uname)
			if err != nil {
				return err
			}
			if use == "grant" {
				if _, err = cli.catalog.GetUnit(ctx, kind, unitID); err != nil {
					return err
				}
				p, err = cli.svc.Grant(ctx, p.ID, kind, unitID)
			} else {
				p, err = cli.svc.Revoke(ctx, p.ID, kind, unitID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q schools: %v, cultures: %v\n", p.Username, p.Grants.SchoolIDs, p.Grants.CultureIDs)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The admin's username or email")
	cmd.Flags().StringVar(&scope, "scope", "", "school | culture")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "The unit id")
	return cmd
}

func (cli *commandLine) newSetActiveCmd(use string, active bool) *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s an admin account", use),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := usageIfEmpty(cmd, uname); err != nil {
				return err
			}
			ctx := context.Background()
			p, err := cli.svc.GetByUsernameOrEmail(ctx, uname)
			if err != nil {
				return err
			}
			_, err = cli.svc.SetActive(ctx, p.ID, active)
			return err
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The admin's username or email")
	return cmd
}
