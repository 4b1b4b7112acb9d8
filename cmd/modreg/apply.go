package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/modreg/bootstrap"
	"github.com/artpar/modreg/core/errs"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply all scheduled changes",
	Long: `Apply all scheduled changes in one step.

If any change would leave a dependency unresolved or stored data
invalid, nothing is applied and every change stays scheduled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *bootstrap.App) error {
			res, err := a.Engine.Apply(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case res.Failed:
				return errs.New(errs.OperationFailed, "scheduled changes could not be applied and remain scheduled")
			case res.Changed:
				fmt.Fprintln(out, "Scheduled changes applied.")
			default:
				fmt.Fprintln(out, "No scheduled changes.")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
