package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/service"
	"github.com/ldi/tasksync/pkg/models"
)

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"accounts"},
		Short:   "Manage CalDAV accounts",
	}

	var acct models.Account
	var serverType string
	addCmd := &cobra.Command{
		Use:   "add <server-url>",
		Short: "Connect to a server and store the account",
		Long: `Connects to the server, discovers the calendar home and stores the account
only if that succeeds. The password may also be given in TASKSYNC_PASSWORD.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct.ServerURL = args[0]
			acct.ServerType = models.ServerType(serverType)
			if acct.Password == "" {
				acct.Password = os.Getenv("TASKSYNC_PASSWORD")
			}
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				added, cals, err := svc.AddAccount(ctx, &acct)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printSuccess(out, "Added account %s (%s)", added.Name, added.ID)
				for _, c := range cals {
					printSuccess(out, "Found calendar %s", c.DisplayName)
				}
				return nil
			})
		},
	}
	addCmd.Flags().StringVarP(&acct.Username, "user", "u", "", "Username")
	addCmd.Flags().StringVarP(&acct.Password, "password", "p", "", "Password or app password")
	addCmd.Flags().StringVar(&acct.Token, "token", "", "Bearer token instead of a password")
	addCmd.Flags().StringVar(&acct.Name, "name", "", "Display name (defaults to the username)")
	addCmd.Flags().StringVar(&serverType, "type", string(models.ServerTypeGeneric), "Server type: rustical, radicale, baikal, nextcloud or generic")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				accounts, err := svc.ListAccounts(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(accounts))
				for _, acc := range accounts {
					rows = append(rows, []string{acc.ID, acc.Name, acc.ServerURL, acc.Username, string(acc.ServerType)})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "SERVER", "USER", "TYPE"}, rows)
				return nil
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <account-id>",
		Aliases: []string{"rm"},
		Short:   "Remove an account and its local calendars and tasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.RemoveAccount(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Removed account %s", args[0])
				return nil
			})
		},
	}

	reconnectCmd := &cobra.Command{
		Use:   "reconnect <account-id>",
		Short: "Re-run server discovery for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.Reconnect(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Reconnected account %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd, reconnectCmd)
	return cmd
}
