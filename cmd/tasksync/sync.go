package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/scheduler"
	"github.com/ldi/tasksync/internal/service"
)

func newSyncCmd(a *app) *cobra.Command {
	var watch bool
	var interval time.Duration
	var workers int

	syncCmd := &cobra.Command{
		Use:   "sync [calendar-url]",
		Short: "Synchronize calendars with their servers",
		Long: `Without arguments every calendar is synchronized once. With --watch the sync
repeats every --interval (sync_interval in the config) until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.SyncInterval
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.SyncWorkers
			}

			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				if len(args) == 1 {
					res, err := svc.SyncCalendar(ctx, args[0])
					if err != nil {
						return err
					}
					printSuccess(out, "%s: %s", args[0], summarizeResult(res))
					return nil
				}

				if !watch {
					results, err := svc.SyncAll(ctx)
					for _, res := range results {
						printSuccess(out, "%s: %s", res.CalendarID, summarizeResult(res))
					}
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				sched := scheduler.New(svc, workers, a.logger)
				sched.Interval = interval
				go func() {
					for ev := range sched.Events() {
						if ev.Err != nil {
							printFailure(out, "%s: %v", ev.CalendarID, ev.Err)
							continue
						}
						printSuccess(out, "%s: %s", ev.CalendarID, summarizeResult(ev.Result))
					}
				}()

				fmt.Fprintf(out, "Syncing every %s, press Ctrl+C to stop\n", interval)
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	syncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep syncing periodically")
	syncCmd.Flags().DurationVar(&interval, "interval", 0, "Interval for --watch (default from config)")
	syncCmd.Flags().IntVar(&workers, "workers", 0, "Calendars synced in parallel (default from config)")
	return syncCmd
}
