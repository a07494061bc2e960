package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fabrik/internal/fabric"
	"fabrik/internal/pipeline"

	"github.com/mark3labs/mcp-go/mcp"
)

const pipelinePartPath = "pipeline-content.json"

func (s *Server) registerPipelineTools() {
	s.addTool(mcp.NewTool("validate_pipeline_definition",
		mcp.WithDescription("Validate a pipeline definition document, including dependencies and cycles."),
		mcp.WithString("definition", mcp.Required(),
			mcp.Description("The pipeline definition JSON.")),
	), s.handleValidatePipeline)

	s.addTool(mcp.NewTool("pipeline_execution_order",
		mcp.WithDescription("Show the dependency waves a pipeline run would schedule."),
		mcp.WithString("definition", mcp.Required(),
			mcp.Description("The pipeline definition JSON.")),
	), s.handleExecutionOrder)

	s.addTool(mcp.NewTool("deploy_data_pipeline",
		mcp.WithDescription("Create or update the DataPipeline item for a definition in a workspace."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("definition", mcp.Required(),
			mcp.Description("The pipeline definition JSON.")),
	), s.handleDeployPipeline)

	s.addTool(mcp.NewTool("run_data_pipeline",
		mcp.WithDescription("Execute a pipeline definition and return the run result."),
		mcp.WithString("definition", mcp.Required(),
			mcp.Description("The pipeline definition JSON.")),
		mcp.WithString("parameters",
			mcp.Description("Optional JSON object of parameter overrides.")),
		mcp.WithBoolean("dry_run",
			mcp.Description("Walk the graph without invoking notebooks. Defaults to false.")),
	), s.handleRunPipeline)

	s.addTool(mcp.NewTool("get_pipeline_run",
		mcp.WithDescription("Fetch a stored pipeline run with per-activity states."),
		mcp.WithString("run_id", mcp.Required(),
			mcp.Description("The run ID returned by run_data_pipeline.")),
	), s.handleGetRun)

	s.addTool(mcp.NewTool("export_pipeline_schema",
		mcp.WithDescription("Emit the JSON Schema for pipeline definition documents."),
	), s.handleExportSchema)
}

func decodeDefinition(raw string) (*pipeline.Definition, error) {
	d, err := pipeline.DecodeBytes([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse pipeline definition: %w", err)
	}
	return d, nil
}

func (s *Server) handleValidatePipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("definition")
	if err != nil {
		return nil, err
	}
	d, err := decodeDefinition(raw)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Validate(d); err != nil {
		var validationErr *pipeline.ValidationError
		if errors.As(err, &validationErr) {
			return jsonResult(map[string]any{
				"valid": false,
				"error": validationErr,
			})
		}
		return nil, err
	}
	return jsonResult(map[string]any{
		"valid":      true,
		"pipeline":   d.Name,
		"activities": d.ActivityNames(),
	})
}

func (s *Server) handleExecutionOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("definition")
	if err != nil {
		return nil, err
	}
	d, err := decodeDefinition(raw)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Validate(d); err != nil {
		return nil, err
	}
	waves, err := pipeline.NewGraph(d).ExecutionOrder()
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"pipeline": d.Name,
		"waves":    waves,
	})
}

func (s *Server) handleDeployPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	raw, err := request.RequireString("definition")
	if err != nil {
		return nil, err
	}
	d, err := decodeDefinition(raw)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Validate(d); err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}

	encoded, err := pipeline.EncodeBytes(d)
	if err != nil {
		return nil, err
	}
	definition := fabric.Definition{
		Parts: []fabric.DefinitionPart{fabric.InlinePart(pipelinePartPath, encoded)},
	}

	existing, err := client.ListItems(ctx, workspaceID, fabric.ItemTypeDataPipeline)
	if err != nil {
		return nil, err
	}
	for _, item := range existing {
		if strings.EqualFold(item.DisplayName, d.Name) {
			if err := client.UpdateItemDefinition(ctx, workspaceID, item.ID, definition); err != nil {
				return nil, err
			}
			return jsonResult(map[string]any{
				"action":   "updated",
				"itemId":   item.ID,
				"pipeline": d.Name,
			})
		}
	}

	item, err := client.CreateItem(ctx, workspaceID, d.Name, fabric.ItemTypeDataPipeline, definition)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"action":   "created",
		"itemId":   item.ID,
		"pipeline": d.Name,
	})
}

func (s *Server) handleRunPipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("definition")
	if err != nil {
		return nil, err
	}
	d, err := decodeDefinition(raw)
	if err != nil {
		return nil, err
	}
	parameters, err := decodeJSONArgument(request.GetString("parameters", ""))
	if err != nil {
		return nil, err
	}

	engine := s.engine
	if request.GetBool("dry_run", false) || engine == nil {
		if engine = s.dryRunEngine(); engine == nil {
			return nil, errors.New("run engine is not configured")
		}
	}

	run, err := engine.Execute(ctx, d, parameters)
	if err != nil {
		return nil, err
	}
	return jsonResult(run)
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runStore == nil {
		return nil, errors.New("run store is not configured")
	}
	runID, err := request.RequireString("run_id")
	if err != nil {
		return nil, err
	}
	run, err := s.runStore.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return jsonResult(run)
}

func (s *Server) handleExportSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schema := pipeline.DefinitionSchema()
	payload, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
