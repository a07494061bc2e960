package fabric

import (
	"context"
	"fmt"
	"strings"
)

// Workspace is a Fabric workspace as returned by the listing API.
type Workspace struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	CapacityID  string `json:"capacityId,omitempty"`
}

// ListWorkspaces returns every workspace the caller can see.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	return listPages[Workspace](ctx, c, c.fabricURL("/workspaces"))
}

// WorkspaceID resolves a workspace display name to its GUID. The name
// match is case-insensitive; an ID passed in is returned as-is when it
// matches a workspace.
func (c *Client) WorkspaceID(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("workspace name is required")
	}
	workspaces, err := c.ListWorkspaces(ctx)
	if err != nil {
		return "", err
	}
	for _, workspace := range workspaces {
		if strings.EqualFold(workspace.DisplayName, name) || workspace.ID == name {
			return workspace.ID, nil
		}
	}
	return "", fmt.Errorf("workspace %q not found", name)
}
