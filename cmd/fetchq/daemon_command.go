package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fetchq/internal/daemon"
)

func newDaemonCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the download daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			queue, err := ctx.queue()
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, queue, logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return d.Run(runCtx)
		},
	}
}
