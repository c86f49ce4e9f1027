package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/service"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write a JSON lines snapshot of the database (without credentials)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.Export(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Exported snapshot to %s", args[0])
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a snapshot into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Import(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Imported %d account(s), %d calendar(s), %d task(s), %d pending deletion(s)",
					res.Accounts, res.Calendars, res.Tasks, res.PendingDeletions)
				return nil
			})
		},
	}
}
