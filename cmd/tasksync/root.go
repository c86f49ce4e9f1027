package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/caldav"
	"github.com/ldi/tasksync/internal/config"
	"github.com/ldi/tasksync/internal/db"
	"github.com/ldi/tasksync/internal/service"
)

// app carries the global flags and the loaded configuration to every command.
type app struct {
	cfgFile string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tasksync",
		Short: "Sync tasks with CalDAV servers",
		Long: `tasksync keeps a local task database in sync with the VTODO collections of
CalDAV servers (Radicale, Baikal, Nextcloud, Rustical or any generic server).

Tasks can be edited offline; the next sync pushes local changes and pulls
remote ones, with the server winning conflicts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Config file (default: user config, then ./.tasksync/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "Database file (overrides db_path)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newAccountCmd(a))
	root.AddCommand(newCalendarCmd(a))
	root.AddCommand(newTaskCmd(a))
	root.AddCommand(newSyncCmd(a))
	root.AddCommand(newMCPCmd(a))
	root.AddCommand(newWebCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newConfigCmd(a))

	return root
}

func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.cfgFile != "" {
		if _, statErr := os.Stat(a.cfgFile); statErr != nil {
			return fmt.Errorf("config file: %w", statErr)
		}
		a.cfg, err = config.LoadFrom(a.cfgFile)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.dbPath != "" {
		a.cfg.DBPath = a.dbPath
	}
	if a.verbose {
		a.cfg.Verbose = true
	}

	a.logger = log.New(io.Discard, "", 0)
	if a.cfg.Verbose {
		a.logger = log.New(cmd.ErrOrStderr(), "tasksync: ", log.LstdFlags)
	}
	return nil
}

// open returns a service over the configured database. The caller must call
// the returned close function.
func (a *app) open(ctx context.Context) (*service.Service, func(), error) {
	database, err := db.Open(a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if a.cfg.SnapshotPath != "" {
		database.EnableAutoSnapshot(a.cfg.SnapshotPath, a.logger.Printf)
	}

	registry := caldav.NewRegistry(&http.Client{Timeout: a.cfg.HTTPTimeout}, a.logger)
	svc := service.New(database, registry, a.logger)
	return svc, func() { database.Close() }, nil
}

// run opens the service for the duration of fn.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closeFn, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}
