package mcpserver

import (
	"context"
	"fmt"

	"fabrik/internal/docs"

	"github.com/mark3labs/mcp-go/mcp"
)

const guideURIPrefix = "fabrik://guides/"

func (s *Server) registerResources() error {
	guides, err := docs.Index()
	if err != nil {
		return fmt.Errorf("load guides: %w", err)
	}
	for _, guide := range guides {
		slug := guide.Slug
		uri := guideURIPrefix + slug
		resource := mcp.NewResource(uri, guide.Title,
			mcp.WithResourceDescription(guide.Description),
			mcp.WithMIMEType("text/markdown"),
		)
		s.mcp.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			loaded, err := docs.Get(slug)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     loaded.Body,
				},
			}, nil
		})
	}
	return nil
}

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("model_health_check",
		mcp.WithPromptDescription("Walk through a full health check of a semantic model."),
		mcp.WithArgument("workspace",
			mcp.ArgumentDescription("Workspace name or GUID."),
			mcp.RequiredArgument()),
		mcp.WithArgument("model",
			mcp.ArgumentDescription("Semantic model name or GUID."),
			mcp.RequiredArgument()),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		workspace := request.Params.Arguments["workspace"]
		model := request.Params.Arguments["model"]
		text := fmt.Sprintf(`Run a health check on the semantic model %q in workspace %q:
1. Activate the analysis tools, then run analyze_model_bpa.
2. Summarize ERROR and WARNING violations with generate_bpa_report (detailed).
3. For each violation, state the concrete fix from the rule's guidance.
4. If the model is DirectLake, validate the definition with validate_tmsl
   and confirm the partition sources still point at the SQL endpoint.`, model, workspace)
		return mcp.NewGetPromptResult("Semantic model health check", []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		}), nil
	})

	s.mcp.AddPrompt(mcp.NewPrompt("backup_routine",
		mcp.WithPromptDescription("Back up a model and prune old snapshots."),
		mcp.WithArgument("workspace",
			mcp.ArgumentDescription("Workspace name or GUID."),
			mcp.RequiredArgument()),
		mcp.WithArgument("model",
			mcp.ArgumentDescription("Semantic model name or GUID."),
			mcp.RequiredArgument()),
		mcp.WithArgument("retention_days",
			mcp.ArgumentDescription("Retention window in days. Defaults to 30.")),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		workspace := request.Params.Arguments["workspace"]
		model := request.Params.Arguments["model"]
		retention := request.Params.Arguments["retention_days"]
		if retention == "" {
			retention = "30"
		}
		text := fmt.Sprintf(`Run the backup routine for model %q in workspace %q:
1. Activate the backup tools.
2. backup_semantic_model, then confirm the new entry with list_model_backups.
3. prune_model_backups with retention_days=%s.
4. Report the snapshot's ID, size, and checksum.`, model, workspace, retention)
		return mcp.NewGetPromptResult("Model backup routine", []mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		}), nil
	})
}
