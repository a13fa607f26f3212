package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spawn-mcp/campaign-studio/pkg/dispatch"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run campaigns queued on Pub/Sub",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Dispatch.Mode != "pubsub" {
			return fmt.Errorf("worker requires dispatch.mode=pubsub, got %q", cfg.Dispatch.Mode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		w := dispatch.NewWorker(a.gcp, cfg.Dispatch.Subscription, a.orchestrator, logger.Named("worker"))
		return w.Start(ctx)
	},
}
