package mcpserver

import (
	"context"
	"errors"

	"fabrik/internal/backup"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerBackupTools() {
	s.addTool(mcp.NewTool("backup_semantic_model",
		mcp.WithDescription("Snapshot a semantic model's TMSL definition into the backup store."),
		mcp.WithString("workspace", mcp.Required(),
			mcp.Description("Workspace name or GUID.")),
		mcp.WithString("model", mcp.Required(),
			mcp.Description("Semantic model name or GUID.")),
	), s.handleBackupModel)

	s.addTool(mcp.NewTool("list_model_backups",
		mcp.WithDescription("List catalogued backups, newest first."),
		mcp.WithString("workspace",
			mcp.Description("Filter by workspace name or GUID.")),
		mcp.WithString("model",
			mcp.Description("Filter by model name or GUID.")),
	), s.handleListBackups)

	s.addTool(mcp.NewTool("restore_semantic_model",
		mcp.WithDescription("Return a backup's TMSL after checksum verification, optionally deploying it."),
		mcp.WithString("backup_id", mcp.Required(),
			mcp.Description("The backup catalog ID.")),
		mcp.WithBoolean("deploy",
			mcp.Description("Push the document back as the model's definition. Defaults to false.")),
	), s.handleRestoreBackup)

	s.addTool(mcp.NewTool("prune_model_backups",
		mcp.WithDescription("Delete backups older than the retention window."),
		mcp.WithNumber("retention_days", mcp.Required(),
			mcp.Description("Backups older than this many days are removed.")),
	), s.handlePruneBackups)
}

func (s *Server) requireBackups() (*backup.Store, error) {
	if s.backups == nil {
		return nil, errors.New("backup store is not configured; set the backup section of the config")
	}
	return s.backups, nil
}

func (s *Server) handleBackupModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.requireBackups()
	if err != nil {
		return nil, err
	}
	workspace, err := request.RequireString("workspace")
	if err != nil {
		return nil, err
	}
	model, err := request.RequireString("model")
	if err != nil {
		return nil, err
	}
	entry, err := store.Snapshot(ctx, workspace, model)
	if err != nil {
		return nil, err
	}
	return jsonResult(entry)
}

func (s *Server) handleListBackups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.requireBackups()
	if err != nil {
		return nil, err
	}
	entries, err := store.List(backup.Filter{
		Workspace: request.GetString("workspace", ""),
		Model:     request.GetString("model", ""),
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(entries)
}

func (s *Server) handleRestoreBackup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.requireBackups()
	if err != nil {
		return nil, err
	}
	backupID, err := request.RequireString("backup_id")
	if err != nil {
		return nil, err
	}

	if request.GetBool("deploy", false) {
		entry, err := store.Deploy(ctx, backupID)
		if err != nil {
			return nil, err
		}
		return jsonResult(map[string]any{
			"deployed": true,
			"backup":   entry,
		})
	}

	entry, payload, err := store.Restore(backupID)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"deployed": false,
		"backup":   entry,
		"tmsl":     string(payload),
	})
}

func (s *Server) handlePruneBackups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store, err := s.requireBackups()
	if err != nil {
		return nil, err
	}
	retention := request.GetInt("retention_days", 0)
	pruned, err := store.Prune(retention)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"pruned":        pruned,
		"retentionDays": retention,
	})
}
