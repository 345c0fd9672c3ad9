package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/unit"
)

// newUnitCmd provisions the unit metadata the catalog subsystem would otherwise own.
func (cli *commandLine) newUnitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Manage schools & culture categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	cmd.AddCommand(cli.newUnitAddCmd(), cli.newUnitListCmd())
	return cmd
}

func (cli *commandLine) newUnitAddCmd() *cobra.Command {
	var (
		u    unit.Unit
		kind string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u.Kind = unit.Kind(core.CleanString(kind, true /* lower */))
			if !u.Kind.Valid() || u.ID <= 0 {
				_ = cmd.Usage()
				return errHelp
			}
			u.Name = core.CleanString(u.Name)
			if u.Name == "" {
				return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "name is a required field"})
			}
			if u.FeePaymentEnabled && len(u.PaymentMethods) == 0 {
				return core.NewValidationError(nil, core.FieldError{Field: "methods", Error: "fee payment needs at least one payment method"})
			}

			u, err := cli.catalog.SaveUnit(context.Background(), u)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s #%d %q\n", u.Kind, u.ID, u.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "school | culture")
	cmd.Flags().Int64Var(&u.ID, "id", 0, "The unit id")
	cmd.Flags().StringVar(&u.Name, "name", "", "The unit name")
	cmd.Flags().StringVar(&u.Location, "location", "", "The unit location")
	cmd.Flags().BoolVar(&u.FeePaymentEnabled, "fee-payment", false, "Accept fee payments through the gateway")
	cmd.Flags().StringSliceVar(&u.PaymentMethods, "methods", nil, "Accepted payment methods")
	cmd.Flags().BoolVar(&u.AdminApprovalRequired, "approval", false, "Submissions need admin approval")
	return cmd
}

func (cli *commandLine) newUnitListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the units of a kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := unit.Kind(core.CleanString(kind, true /* lower */))
			if !k.Valid() {
				_ = cmd.Usage()
				return errHelp
			}
			units, err := cli.catalog.QueryUnits(context.Background(), k)
			if err != nil {
				return err
			}
			for _, u := range units {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\tfee_payment=%t\t%s\n",
					u.ID, u.Name, u.Location, u.FeePaymentEnabled, strings.Join(u.PaymentMethods, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "school | culture")
	return cmd
}
