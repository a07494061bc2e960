// Package mcpserver assembles the MCP server: tool registration with
// modular activation, guide resources, and prompts over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fabrik/internal/activation"
	"fabrik/internal/backup"
	"fabrik/internal/bpa"
	"fabrik/internal/fabric"
	"fabrik/internal/logging"
	"fabrik/internal/runs"
	"fabrik/internal/version"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverName = "fabrik"

const instructions = `This server manages Microsoft Fabric semantic models and data
pipelines through modular tool activation. Only the core tools are
active at startup. Activate the category you need first
(activate_workspace_tools, activate_analysis_tools,
activate_modeling_tools, activate_pipeline_tools,
activate_backup_tools), or pass your request to smart_activate_tools
to detect and activate the right one. list_tool_categories shows
every category with its tools and state. Guides are published as
fabrik://guides/<slug> resources.`

// Options carries the server's collaborators. Client may be nil for
// offline use; tools that need it return an error saying so.
type Options struct {
	Client   *fabric.Client
	Analyzer *bpa.Analyzer
	Engine   *runs.Engine
	RunStore *runs.Store
	Backups  *backup.Store
	Logger   *logging.Logger
}

// Server wires the tool catalog onto an MCP server with activation
// gating.
type Server struct {
	mcp      *server.MCPServer
	manager  *activation.Manager
	client   *fabric.Client
	analyzer *bpa.Analyzer
	engine   *runs.Engine
	runStore *runs.Store
	backups  *backup.Store
	logger   *logging.Logger
}

func New(opts Options) (*Server, error) {
	analyzer := opts.Analyzer
	if analyzer == nil {
		loaded, err := bpa.NewAnalyzer("")
		if err != nil {
			return nil, fmt.Errorf("load BPA rules: %w", err)
		}
		analyzer = loaded
	}

	s := &Server{
		manager:  activation.NewManager(),
		client:   opts.Client,
		analyzer: analyzer,
		engine:   opts.Engine,
		runStore: opts.RunStore,
		backups:  opts.Backups,
		logger:   opts.Logger,
	}

	s.mcp = server.NewMCPServer(serverName, version.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithInstructions(instructions),
		server.WithToolFilter(s.filterTools),
	)

	s.registerCoreTools()
	s.registerWorkspaceTools()
	s.registerAnalysisTools()
	s.registerModelingTools()
	s.registerPipelineTools()
	s.registerBackupTools()
	if err := s.registerResources(); err != nil {
		return nil, err
	}
	s.registerPrompts()

	return s, nil
}

// ServeStdio blocks serving the stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server for alternative transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// filterTools hides tools whose category has not been activated.
func (s *Server) filterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	filtered := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if s.manager.IsActive(tool.Name) {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

// addTool registers a tool behind the activation gate.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	name := tool.Name
	s.mcp.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.manager.IsActive(name) {
			return mcp.NewToolResultError(s.manager.HintForTool(name)), nil
		}
		result, err := handler(ctx, request)
		if err != nil {
			s.warn("tool call failed", map[string]string{"tool": name, "error": err.Error()})
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	})
}

func (s *Server) notifyToolsChanged() {
	s.mcp.SendNotificationToAllClients("notifications/tools/list_changed", nil)
}

// dryRunEngine builds an engine that walks the graph without invoking
// notebooks, persisting to the run store when one is configured.
func (s *Server) dryRunEngine() *runs.Engine {
	engine, err := runs.NewEngine(runs.Options{
		Invoker: &runs.DryRunInvoker{},
		Store:   s.runStore,
		Logger:  s.logger,
	})
	if err != nil {
		return nil
	}
	return engine
}

func (s *Server) requireClient() (*fabric.Client, error) {
	if s.client == nil {
		return nil, errors.New("no Fabric credentials configured; set the auth section of the config")
	}
	return s.client, nil
}

func (s *Server) warn(message string, fields map[string]string) {
	if s.logger != nil {
		s.logger.Warn(message, fields)
	}
}

// decodeJSONArgument parses an optional JSON-object tool argument.
func decodeJSONArgument(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("argument is not a JSON object: %w", err)
	}
	return decoded, nil
}

func jsonResult(value any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
