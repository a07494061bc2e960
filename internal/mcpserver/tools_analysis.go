package mcpserver

import (
	"context"
	"errors"

	"fabrik/internal/bpa"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerAnalysisTools() {
	s.addTool(mcp.NewTool("analyze_tmsl_bpa",
		mcp.WithDescription("Run best practice analysis on a TMSL document."),
		mcp.WithString("tmsl", mcp.Required(),
			mcp.Description("The TMSL document (model, createOrReplace script, or lone table).")),
	), s.handleAnalyzeTMSL)

	s.addTool(mcp.NewTool("analyze_model_bpa",
		mcp.WithDescription("Fetch a deployed model's definition and run best practice analysis on it."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("model", mcp.Required(),
			mcp.Description("Semantic model GUID.")),
	), s.handleAnalyzeModel)

	s.addTool(mcp.NewTool("get_bpa_violations_by_severity",
		mcp.WithDescription("Filter the last analysis by severity."),
		mcp.WithString("severity", mcp.Required(),
			mcp.Description("ERROR, WARNING, or INFO.")),
	), s.handleViolationsBySeverity)

	s.addTool(mcp.NewTool("get_bpa_violations_by_category",
		mcp.WithDescription("Filter the last analysis by rule category."),
		mcp.WithString("category", mcp.Required(),
			mcp.Description("Rule category, matched case-insensitively.")),
	), s.handleViolationsByCategory)

	s.addTool(mcp.NewTool("get_bpa_rules_summary",
		mcp.WithDescription("List every BPA rule with its severity and whether it is enforced."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.analyzer.RulesSummary())
	})

	s.addTool(mcp.NewTool("get_bpa_categories",
		mcp.WithDescription("List the rule categories."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.analyzer.Categories())
	})

	s.addTool(mcp.NewTool("generate_bpa_report",
		mcp.WithDescription("Render the last analysis as a text report."),
		mcp.WithString("format",
			mcp.Description("summary (default), detailed, or by_category.")),
	), s.handleReport)
}

func (s *Server) handleAnalyzeTMSL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("tmsl")
	if err != nil {
		return nil, err
	}
	analysis, err := s.analyzer.AnalyzeTMSL(raw)
	if err != nil {
		return nil, err
	}
	return jsonResult(analysis)
}

func (s *Server) handleAnalyzeModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := s.fetchModelTMSL(ctx, request)
	if err != nil {
		return nil, err
	}
	analysis, err := s.analyzer.AnalyzeTMSL(raw)
	if err != nil {
		return nil, err
	}
	return jsonResult(analysis)
}

// fetchModelTMSL pulls the TMSL definition part of a deployed model.
func (s *Server) fetchModelTMSL(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	client, err := s.requireClient()
	if err != nil {
		return "", err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return "", err
	}
	model, err := request.RequireString("model")
	if err != nil {
		return "", err
	}
	definition, err := client.GetItemDefinition(ctx, workspaceID, model, "TMSL")
	if err != nil {
		return "", err
	}
	payload, err := modelDefinitionPart(definition)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (s *Server) handleViolationsBySeverity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("severity")
	if err != nil {
		return nil, err
	}
	severity, err := bpa.ParseSeverity(raw)
	if err != nil {
		return nil, err
	}
	violations, err := s.analyzer.BySeverity(severity)
	if err != nil {
		return nil, err
	}
	return jsonResult(violations)
}

func (s *Server) handleViolationsByCategory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := request.RequireString("category")
	if err != nil {
		return nil, err
	}
	violations, err := s.analyzer.ByCategory(category)
	if err != nil {
		return nil, err
	}
	return jsonResult(violations)
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	analysis := s.analyzer.Last()
	if analysis == nil {
		return nil, errors.New("no analysis has been run yet")
	}
	format := request.GetString("format", bpa.ReportSummary)
	report, err := bpa.FormatReport(analysis, format)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(report), nil
}
