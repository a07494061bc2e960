package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"fabrik/internal/activation"
	"fabrik/internal/version"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerCoreTools() {
	s.addTool(mcp.NewTool("get_server_info",
		mcp.WithDescription("Server version, capabilities, and activation state."),
	), s.handleServerInfo)

	s.addTool(mcp.NewTool("smart_activate_tools",
		mcp.WithDescription("Detect which tool category a request needs and activate it."),
		mcp.WithString("user_request",
			mcp.Description("The request text to analyze for required tool categories.")),
		mcp.WithBoolean("auto_activate",
			mcp.Description("Activate the detected categories instead of only suggesting them. Defaults to true.")),
	), s.handleSmartActivate)

	activations := []struct {
		tool     string
		category string
		title    string
	}{
		{"activate_workspace_tools", activation.CategoryWorkspace, "workspace discovery, DAX queries, and notebook jobs"},
		{"activate_analysis_tools", activation.CategoryAnalysis, "best practice analysis"},
		{"activate_modeling_tools", activation.CategoryModeling, "TMSL modeling"},
		{"activate_pipeline_tools", activation.CategoryPipelines, "pipeline definitions and runs"},
		{"activate_backup_tools", activation.CategoryBackups, "semantic model backups"},
	}
	for _, entry := range activations {
		category := entry.category
		s.addTool(mcp.NewTool(entry.tool,
			mcp.WithDescription("Activate the tools for "+entry.title+"."),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.activate(category)
		})
	}

	s.addTool(mcp.NewTool("list_tool_categories",
		mcp.WithDescription("List every tool category with its tools, keywords, and activation state."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.manager.Summary())
	})

	s.addTool(mcp.NewTool("get_token_status",
		mcp.WithDescription("Report whether a Fabric API token is cached and when it expires."),
	), s.handleTokenStatus)

	s.addTool(mcp.NewTool("clear_token_cache",
		mcp.WithDescription("Drop the cached Fabric API token so the next call re-authenticates."),
	), s.handleClearTokenCache)
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"name":              serverName,
		"version":           version.Get(),
		"activeCategories":  s.manager.Active(),
		"fabricConfigured":  s.client != nil,
		"runEngineEnabled":  s.engine != nil,
		"backupsConfigured": s.backups != nil,
	})
}

func (s *Server) activate(category string) (*mcp.CallToolResult, error) {
	meta, err := s.manager.Activate(category)
	if err != nil {
		return nil, err
	}
	s.notifyToolsChanged()
	return jsonResult(map[string]any{
		"activated": meta.Name,
		"title":     meta.Title,
		"tools":     meta.Tools,
	})
}

func (s *Server) handleSmartActivate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userRequest := request.GetString("user_request", "")
	autoActivate := request.GetBool("auto_activate", true)

	if strings.TrimSpace(userRequest) == "" {
		return jsonResult(map[string]any{
			"status":     "info",
			"message":    "Provide your request text for automatic tool detection.",
			"categories": activation.Categories(),
		})
	}

	detected := s.manager.DetectCategories(userRequest)
	if len(detected) == 0 {
		return jsonResult(map[string]any{
			"status":     "info",
			"message":    "No tool category matched the request.",
			"suggestion": "Be more specific (BPA analysis, TMSL modeling, pipelines, backups) or use list_tool_categories.",
		})
	}

	if autoActivate {
		var activated []string
		for _, name := range detected {
			if _, err := s.manager.Activate(name); err == nil {
				activated = append(activated, name)
			}
		}
		s.notifyToolsChanged()
		return jsonResult(map[string]any{
			"status":    "success",
			"message":   fmt.Sprintf("Activated: %s", strings.Join(activated, ", ")),
			"activated": activated,
		})
	}

	commands := make([]string, 0, len(detected))
	for _, name := range detected {
		if command := activation.ActivationCommand(name); command != "" {
			commands = append(commands, command)
		}
	}
	return jsonResult(map[string]any{
		"status":    "success",
		"message":   fmt.Sprintf("Detected categories: %s", strings.Join(detected, ", ")),
		"detected":  detected,
		"commands":  commands,
		"next_step": "Run the activation command, then retry your request.",
	})
}

func (s *Server) handleTokenStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	return jsonResult(client.Tokens().Status())
}

func (s *Server) handleClearTokenCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	client.Tokens().Clear()
	return mcp.NewToolResultText("token cache cleared"), nil
}
