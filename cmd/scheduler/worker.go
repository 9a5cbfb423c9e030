package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued runs without serving HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stopWorkers, err := a.startWorkers(ctx, a.runService())
			if err != nil {
				return err
			}
			a.logger.Sugar().Infow("worker started", "concurrency", a.cfg.Worker.Concurrency, "poll", a.cfg.Worker.PollSchedule)
			<-ctx.Done()
			stopWorkers()
			a.logger.Sugar().Infow("worker stopped")
			return nil
		},
	}
}
