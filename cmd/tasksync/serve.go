package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldi/tasksync/internal/mcp"
	"github.com/ldi/tasksync/internal/scheduler"
	"github.com/ldi/tasksync/internal/server"
	"github.com/ldi/tasksync/internal/service"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				return mcp.Serve(mcp.NewServer(svc))
			})
		},
	}
}

func newWebCmd(a *app) *cobra.Command {
	var port int
	var noSync bool

	webCmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the JSON API, syncing in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Web.Port
			}

			return a.run(cmd, func(ctx context.Context, svc *service.Service) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				var sched *scheduler.Scheduler
				if !noSync && a.cfg.SyncInterval > 0 {
					sched = scheduler.New(svc, a.cfg.SyncWorkers, a.logger)
					sched.Interval = a.cfg.SyncInterval
					go sched.Start(ctx)
				}

				srv := server.NewServer(svc, sched, a.logger)
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()

				addr := fmt.Sprintf("%s:%d", a.cfg.Web.Host, port)
				fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", addr)
				return srv.Start(addr)
			})
		},
	}
	webCmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config)")
	webCmd.Flags().BoolVar(&noSync, "no-sync", false, "Do not sync in the background")
	return webCmd
}
