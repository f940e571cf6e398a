package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			pool := a.WorkerPool()
			a.Logger.Info("worker pool started", "workers", a.Config.Worker.Workers)
			pool.Start(ctx)
			<-ctx.Done()
			pool.Stop()
			a.Logger.Info("worker pool stopped")
			return nil
		},
	}
}

func schedulerCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Enqueue the periodic reminder dispatch and cleanup jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := a.Scheduler()
			if once {
				sched.RunOnce(ctx)
				return nil
			}
			a.Logger.Info("scheduler started")
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			a.Logger.Info("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "enqueue every scheduled job once and exit")
	return cmd
}
