package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

var (
	runURL        string
	runAddress    string
	runBrandVoice string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one campaign in the foreground and print it as JSON",
	Example: `  campaignd run --url https://bluebottlecoffee.com --address "1 Ferry Building, San Francisco"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.orchestrator.Start(ctx, types.CampaignInput{
			URL:        runURL,
			Address:    runAddress,
			BrandVoice: runBrandVoice,
		})
		if err != nil {
			return err
		}
		logger.Info("campaign started", zap.String("campaign_id", h.CampaignID))

		runErr := h.Wait(ctx)
		if runErr != nil {
			logger.Error("campaign failed", zap.String("campaign_id", h.CampaignID), zap.Error(runErr))
		}

		view, err := a.orchestrator.View(cmd.Context(), h.CampaignID)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("encoding campaign: %w", err)
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "business website URL")
	runCmd.Flags().StringVar(&runAddress, "address", "", "business street address")
	runCmd.Flags().StringVar(&runBrandVoice, "brand-voice", "", "preferred tone")
	_ = runCmd.MarkFlagRequired("url")
}
