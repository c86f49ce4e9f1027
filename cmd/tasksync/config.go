package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ldi/tasksync/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the merged configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "# Merged configuration (defaults, files, environment, flags)")
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file paths",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Global:  %s\n", config.GlobalConfigPath())
			fmt.Fprintf(out, "Project: %s\n", config.ProjectConfigPath())
		},
	}

	var global bool
	saveCmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Write the merged configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectConfigPath()
			switch {
			case len(args) == 1:
				path = args[0]
			case global:
				path = config.GlobalConfigPath()
			}
			if err := config.Save(a.cfg, path); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Saved configuration to %s", path)
			return nil
		},
	}
	saveCmd.Flags().BoolVar(&global, "global", false, "Write the per-user config instead of the project one")

	cmd.AddCommand(showCmd, pathCmd, saveCmd)
	return cmd
}
