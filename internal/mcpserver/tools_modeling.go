package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fabrik/internal/fabric"
	"fabrik/internal/tmsl"

	"github.com/mark3labs/mcp-go/mcp"
)

const modelPartSuffix = "model.bim"

func (s *Server) registerModelingTools() {
	s.addTool(mcp.NewTool("get_model_definition",
		mcp.WithDescription("Fetch a semantic model's TMSL definition."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("model", mcp.Required(),
			mcp.Description("Semantic model GUID.")),
	), s.handleGetModelDefinition)

	s.addTool(mcp.NewTool("validate_tmsl",
		mcp.WithDescription("Validate a TMSL document, including the DirectLake constraints."),
		mcp.WithString("tmsl", mcp.Required(),
			mcp.Description("The TMSL document to validate.")),
	), s.handleValidateTMSL)

	s.addTool(mcp.NewTool("update_model_using_tmsl",
		mcp.WithDescription("Validate a TMSL document and deploy it as a model's definition."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("model", mcp.Required(),
			mcp.Description("Semantic model GUID.")),
		mcp.WithString("tmsl", mcp.Required(),
			mcp.Description("The TMSL document to deploy.")),
		mcp.WithBoolean("validate_only",
			mcp.Description("Validate without deploying. Defaults to false.")),
	), s.handleUpdateModel)

	s.addTool(mcp.NewTool("add_measure_to_model",
		mcp.WithDescription("Add or replace one measure via the safe single-table workflow."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("model", mcp.Required(),
			mcp.Description("Semantic model GUID.")),
		mcp.WithString("table", mcp.Required(),
			mcp.Description("The table the measure belongs to.")),
		mcp.WithString("name", mcp.Required(),
			mcp.Description("Measure name.")),
		mcp.WithString("expression", mcp.Required(),
			mcp.Description("The DAX expression.")),
		mcp.WithString("format_string",
			mcp.Description("Optional format string, e.g. #,0.00.")),
		mcp.WithString("description",
			mcp.Description("Optional measure description.")),
		mcp.WithBoolean("validate_only",
			mcp.Description("Return the edited document without deploying. Defaults to false.")),
	), s.handleAddMeasure)

	s.addTool(mcp.NewTool("generate_directlake_tmsl_template",
		mcp.WithDescription("Generate a DirectLake TMSL template from an explicit schema or a lakehouse's tables."),
		mcp.WithString("model_name", mcp.Required(),
			mcp.Description("Name for the new semantic model.")),
		mcp.WithString("workspace",
			mcp.Description("Workspace name or GUID, for lakehouse discovery.")),
		mcp.WithString("lakehouse",
			mcp.Description("Lakehouse GUID; its delta tables and SQL endpoint seed the template.")),
		mcp.WithString("schema",
			mcp.Description("Explicit JSON schema: {\"server\":...,\"endpointId\":...,\"tables\":[{\"name\":...,\"columns\":[{\"name\":...,\"sqlType\":...}]}]}.")),
	), s.handleTemplate)
}

func (s *Server) handleGetModelDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := s.fetchModelTMSL(ctx, request)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(raw), nil
}

func (s *Server) handleValidateTMSL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("tmsl")
	if err != nil {
		return nil, err
	}
	return jsonResult(tmsl.ValidateString(raw))
}

func (s *Server) handleUpdateModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("tmsl")
	if err != nil {
		return nil, err
	}

	result := tmsl.ValidateString(raw)
	if !result.Valid {
		return jsonResult(map[string]any{
			"deployed":   false,
			"validation": result,
		})
	}
	if request.GetBool("validate_only", false) {
		return jsonResult(map[string]any{
			"deployed":   false,
			"validation": result,
		})
	}

	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	model, err := request.RequireString("model")
	if err != nil {
		return nil, err
	}

	definition := fabric.Definition{
		Parts: []fabric.DefinitionPart{fabric.InlinePart(modelPartSuffix, []byte(raw))},
	}
	if err := client.UpdateItemDefinition(ctx, workspaceID, model, definition); err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"deployed":   true,
		"validation": result,
	})
}

func (s *Server) handleAddMeasure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := request.RequireString("table")
	if err != nil {
		return nil, err
	}
	name, err := request.RequireString("name")
	if err != nil {
		return nil, err
	}
	expression, err := request.RequireString("expression")
	if err != nil {
		return nil, err
	}
	measure := tmsl.Measure{
		Name:         name,
		Expression:   expression,
		FormatString: request.GetString("format_string", ""),
		Description:  request.GetString("description", ""),
	}

	raw, err := s.fetchModelTMSL(ctx, request)
	if err != nil {
		return nil, err
	}
	doc, err := tmsl.Parse(raw)
	if err != nil {
		return nil, err
	}

	edit, err := tmsl.SafeMeasureAddition(doc, table, measure)
	if err != nil {
		return nil, err
	}
	if !edit.Safe || request.GetBool("validate_only", false) {
		return jsonResult(map[string]any{
			"deployed": false,
			"edit":     edit,
		})
	}

	payload, err := json.MarshalIndent(edit.Document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode edited model: %w", err)
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	model, _ := request.RequireString("model")
	definition := fabric.Definition{
		Parts: []fabric.DefinitionPart{fabric.InlinePart(modelPartSuffix, payload)},
	}
	if err := s.client.UpdateItemDefinition(ctx, workspaceID, model, definition); err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"deployed": true,
		"edit":     edit,
	})
}

func (s *Server) handleTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modelName, err := request.RequireString("model_name")
	if err != nil {
		return nil, err
	}

	if raw := request.GetString("schema", ""); strings.TrimSpace(raw) != "" {
		var opts tmsl.TemplateOptions
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return nil, fmt.Errorf("schema is not valid JSON: %w", err)
		}
		opts.ModelName = modelName
		doc, err := tmsl.Template(opts)
		if err != nil {
			return nil, err
		}
		return jsonResult(doc)
	}

	// Discovery mode: the tables API carries no column types, so return
	// the skeleton for the caller to complete and resubmit as schema.
	discovered, err := s.discoverTemplateSchema(ctx, request)
	if err != nil {
		return nil, err
	}
	discovered.ModelName = modelName
	return jsonResult(map[string]any{
		"schema":    discovered,
		"next_step": "fill in each table's columns with their SQL types, then call generate_directlake_tmsl_template again with this schema",
	})
}

// discoverTemplateSchema builds template options from a lakehouse's
// delta tables and SQL endpoint.
func (s *Server) discoverTemplateSchema(ctx context.Context, request mcp.CallToolRequest) (tmsl.TemplateOptions, error) {
	client, err := s.requireClient()
	if err != nil {
		return tmsl.TemplateOptions{}, err
	}
	workspace := request.GetString("workspace", "")
	lakehouse := request.GetString("lakehouse", "")
	if workspace == "" || lakehouse == "" {
		return tmsl.TemplateOptions{}, fmt.Errorf("provide either schema or workspace and lakehouse")
	}
	workspaceID, err := client.WorkspaceID(ctx, workspace)
	if err != nil {
		return tmsl.TemplateOptions{}, err
	}
	endpoint, err := client.LakehouseSQLEndpoint(ctx, workspaceID, lakehouse)
	if err != nil {
		return tmsl.TemplateOptions{}, err
	}
	tables, err := client.ListDeltaTables(ctx, workspaceID, lakehouse)
	if err != nil {
		return tmsl.TemplateOptions{}, err
	}
	opts := tmsl.TemplateOptions{
		Server:     endpoint.ConnectionString,
		EndpointID: endpoint.ID,
	}
	for _, table := range tables {
		opts.Tables = append(opts.Tables, tmsl.TableSchema{Name: table.Name})
	}
	return opts, nil
}

func modelDefinitionPart(definition fabric.Definition) ([]byte, error) {
	for _, part := range definition.Parts {
		if strings.HasSuffix(part.Path, modelPartSuffix) {
			return definition.Part(part.Path)
		}
	}
	return nil, fmt.Errorf("definition has no %s part", modelPartSuffix)
}
