package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/service"
)

func newCalendarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calendar",
		Aliases: []string{"calendars", "cal"},
		Short:   "Manage task calendars",
	}

	var accountID string
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List known calendars",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				cals, err := svc.ListCalendars(ctx, accountID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(cals))
				for _, c := range cals {
					rows = append(rows, []string{c.DisplayName, c.Color, strings.Join(c.Components, ","), c.ID})
				}
				renderTable(cmd.OutOrStdout(), []string{"NAME", "COLOR", "COMPONENTS", "URL"}, rows)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&accountID, "account", "", "Only calendars of this account")

	refreshCmd := &cobra.Command{
		Use:   "refresh <account-id>",
		Short: "Re-read an account's calendars from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				cals, err := svc.RefreshCalendars(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "%d calendar(s)", len(cals))
				return nil
			})
		},
	}

	var color string
	createCmd := &cobra.Command{
		Use:   "create <account-id> <name>",
		Short: "Create a task calendar on the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				cal, err := svc.CreateCalendar(ctx, args[0], args[1], color)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Created calendar %s at %s", cal.DisplayName, cal.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&color, "color", "", "Color as #RRGGBB")

	var newName, newColor, newIcon string
	updateCmd := &cobra.Command{
		Use:   "update <calendar-url>",
		Short: "Rename or recolor a calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u service.CalendarUpdate
			if cmd.Flags().Changed("name") {
				u.DisplayName = &newName
			}
			if cmd.Flags().Changed("color") {
				u.Color = &newColor
			}
			if cmd.Flags().Changed("icon") {
				u.Icon = &newIcon
			}
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				cal, rejected, err := svc.UpdateCalendar(ctx, args[0], u)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, prop := range rejected {
					printFailure(out, "Server rejected %s", prop)
				}
				printSuccess(out, "Calendar %s updated", cal.DisplayName)
				return nil
			})
		},
	}
	updateCmd.Flags().StringVar(&newName, "name", "", "New name")
	updateCmd.Flags().StringVar(&newColor, "color", "", "New color as #RRGGBB")
	updateCmd.Flags().StringVar(&newIcon, "icon", "", "Local icon name")

	removeCmd := &cobra.Command{
		Use:     "remove <calendar-url>",
		Aliases: []string{"rm"},
		Short:   "Delete a calendar on the server and locally",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.DeleteCalendar(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Deleted calendar %s", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, refreshCmd, createCmd, updateCmd, removeCmd)
	return cmd
}
