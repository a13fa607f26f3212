package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve campaign tools over MCP stdio",
	Long: `Serve start_campaign, campaign_progress and campaign_results over stdio.
Logs go to stderr; stdout carries the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcp.NewMCPServer(a.orchestrator, version, logger.Named("mcp"))
		err = srv.Start(cmd.Context())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownErr := a.orchestrator.Shutdown(ctx); shutdownErr != nil {
			logger.Error("campaigns interrupted", zap.Error(shutdownErr))
		}
		return err
	},
}
