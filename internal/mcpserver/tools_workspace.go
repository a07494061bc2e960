package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerWorkspaceTools() {
	s.addTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List the Fabric workspaces the credentials can reach."),
	), s.handleListWorkspaces)

	s.addTool(mcp.NewTool("get_workspace_id",
		mcp.WithDescription("Resolve a workspace display name to its GUID."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace display name (or GUID, returned unchanged).")),
	), s.handleWorkspaceID)

	s.addTool(mcp.NewTool("list_datasets",
		mcp.WithDescription("List the semantic models in a workspace."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
	), s.handleListDatasets)

	s.addTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List the notebooks in a workspace."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
	), s.handleListNotebooks)

	s.addTool(mcp.NewTool("list_lakehouses",
		mcp.WithDescription("List the lakehouses in a workspace."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
	), s.handleListLakehouses)

	s.addTool(mcp.NewTool("list_delta_tables",
		mcp.WithDescription("List the delta tables in a lakehouse."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("lakehouse", mcp.Required(),
			mcp.Description("Lakehouse item GUID.")),
	), s.handleListDeltaTables)

	s.addTool(mcp.NewTool("get_lakehouse_sql_endpoint",
		mcp.WithDescription("Return a lakehouse's SQL analytics endpoint connection string."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("lakehouse", mcp.Required(),
			mcp.Description("Lakehouse item GUID.")),
	), s.handleSQLEndpoint)

	s.addTool(mcp.NewTool("execute_dax_query",
		mcp.WithDescription("Run a DAX query (starting with EVALUATE or DEFINE) against a dataset."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("dataset", mcp.Required(),
			mcp.Description("Dataset (semantic model) GUID.")),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("The DAX query text.")),
	), s.handleExecuteDAX)

	s.addTool(mcp.NewTool("run_notebook_job",
		mcp.WithDescription("Schedule a notebook job run and return its job instance ID."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("notebook", mcp.Required(),
			mcp.Description("Notebook item GUID.")),
		mcp.WithString("parameters",
			mcp.Description("Optional JSON object of notebook parameters.")),
	), s.handleRunNotebookJob)

	s.addTool(mcp.NewTool("get_notebook_job_status",
		mcp.WithDescription("Poll the status of a notebook job instance."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("notebook", mcp.Required(),
			mcp.Description("Notebook item GUID.")),
		mcp.WithString("job_id", mcp.Required(),
			mcp.Description("Job instance ID returned by run_notebook_job.")),
	), s.handleJobStatus)
}

func (s *Server) handleListWorkspaces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaces, err := client.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(workspaces)
}

func (s *Server) handleWorkspaceID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspace, err := request.RequireString("workspace")
	if err != nil {
		return nil, err
	}
	id, err := client.WorkspaceID(ctx, workspace)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]string{"workspace": workspace, "id": id})
}

func (s *Server) workspaceID(ctx context.Context, request mcp.CallToolRequest) (string, error) {
	workspace, err := request.RequireString("workspace")
	if err != nil {
		return "", err
	}
	return s.client.WorkspaceID(ctx, workspace)
}

func (s *Server) handleListDatasets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	items, err := client.ListDatasets(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return jsonResult(items)
}

func (s *Server) handleListNotebooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	items, err := client.ListNotebooks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return jsonResult(items)
}

func (s *Server) handleListLakehouses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	items, err := client.ListLakehouses(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return jsonResult(items)
}

func (s *Server) handleListDeltaTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	lakehouse, err := request.RequireString("lakehouse")
	if err != nil {
		return nil, err
	}
	tables, err := client.ListDeltaTables(ctx, workspaceID, lakehouse)
	if err != nil {
		return nil, err
	}
	return jsonResult(tables)
}

func (s *Server) handleSQLEndpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	lakehouse, err := request.RequireString("lakehouse")
	if err != nil {
		return nil, err
	}
	endpoint, err := client.LakehouseSQLEndpoint(ctx, workspaceID, lakehouse)
	if err != nil {
		return nil, err
	}
	return jsonResult(endpoint)
}

func (s *Server) handleExecuteDAX(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	dataset, err := request.RequireString("dataset")
	if err != nil {
		return nil, err
	}
	query, err := request.RequireString("query")
	if err != nil {
		return nil, err
	}
	result, err := client.ExecuteDAX(ctx, dataset, query)
	if err != nil {
		return nil, err
	}
	return jsonResult(result)
}

func (s *Server) handleRunNotebookJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	notebook, err := request.RequireString("notebook")
	if err != nil {
		return nil, err
	}
	parameters, err := decodeJSONArgument(request.GetString("parameters", ""))
	if err != nil {
		return nil, err
	}
	jobID, err := client.RunNotebookJob(ctx, workspaceID, notebook, parameters)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]string{"jobId": jobID, "workspaceId": workspaceID, "notebookId": notebook})
}

func (s *Server) handleJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := s.requireClient()
	if err != nil {
		return nil, err
	}
	workspaceID, err := s.workspaceID(ctx, request)
	if err != nil {
		return nil, err
	}
	notebook, err := request.RequireString("notebook")
	if err != nil {
		return nil, err
	}
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return nil, err
	}
	job, err := client.JobInstance(ctx, workspaceID, notebook, jobID)
	if err != nil {
		return nil, err
	}
	return jsonResult(job)
}
