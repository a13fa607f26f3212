// Package mcp exposes campaign operations as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/spawn-mcp/campaign-studio/pkg/coordinator"
	"github.com/spawn-mcp/campaign-studio/pkg/logging"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// Campaigns is the orchestrator surface the tools need.
type Campaigns interface {
	Start(ctx context.Context, input types.CampaignInput) (*coordinator.Handle, error)
	Progress(ctx context.Context, campaignID string) (*types.CampaignProgress, error)
	View(ctx context.Context, campaignID string) (*types.CampaignView, error)
}

// MCPServer wraps the orchestrator with MCP protocol support
type MCPServer struct {
	campaigns Campaigns
	mcpServer *server.MCPServer
	logger    *zap.Logger
}

// NewMCPServer creates a new MCP server that exposes campaign tools
func NewMCPServer(campaigns Campaigns, version string, logger *zap.Logger) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Campaign Studio",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &MCPServer{
		campaigns: campaigns,
		mcpServer: mcpServer,
		logger:    logging.OrNop(logger),
	}
	s.registerTools()
	return s
}

func (s *MCPServer) registerTools() {
	startCampaign := mcp.NewTool("start_campaign",
		mcp.WithDescription("Start a 7-day social media campaign for a business website. Returns the campaign ID to poll."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Business website URL"),
		),
		mcp.WithString("address",
			mcp.Description("Street address, used to find nearby competitors"),
		),
		mcp.WithString("brand_voice",
			mcp.Description("Preferred tone, e.g. playful or premium"),
		),
	)
	s.mcpServer.AddTool(startCampaign, s.handleStartCampaign)

	progress := mcp.NewTool("campaign_progress",
		mcp.WithDescription("Get status and progress percentage of a campaign"),
		mcp.WithString("campaign_id", mcp.Required()),
	)
	s.mcpServer.AddTool(progress, s.handleProgress)

	results := mcp.NewTool("campaign_results",
		mcp.WithDescription("Get the campaign with every stage result produced so far"),
		mcp.WithString("campaign_id", mcp.Required()),
	)
	s.mcpServer.AddTool(results, s.handleResults)
}

func (s *MCPServer) handleStartCampaign(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid url: %v", err)), nil
	}

	handle, err := s.campaigns.Start(ctx, types.CampaignInput{
		URL:        url,
		Address:    request.GetString("address", ""),
		BrandVoice: request.GetString("brand_voice", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start campaign: %v", err)), nil
	}

	s.logger.Info("campaign started over mcp", zap.String("campaign_id", handle.CampaignID))
	return mcp.NewToolResultText(fmt.Sprintf("Started campaign %s. Poll campaign_progress for status.", handle.CampaignID)), nil
}

func (s *MCPServer) handleProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("campaign_id")
	if err != nil {
		return mcp.NewToolResultError("campaign_id required"), nil
	}
	progress, err := s.campaigns.Progress(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if progress == nil {
		return mcp.NewToolResultError(fmt.Sprintf("campaign %s not found", id)), nil
	}
	return jsonResult(progress)
}

func (s *MCPServer) handleResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("campaign_id")
	if err != nil {
		return mcp.NewToolResultError("campaign_id required"), nil
	}
	view, err := s.campaigns.View(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if view == nil {
		return mcp.NewToolResultError(fmt.Sprintf("campaign %s not found", id)), nil
	}
	return jsonResult(view)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Start serves the tools over stdio until stdin closes.
func (s *MCPServer) Start(ctx context.Context) error {
	s.logger.Info("starting mcp server on stdio")
	return server.ServeStdio(s.mcpServer)
}
