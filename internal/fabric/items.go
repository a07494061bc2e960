package fabric

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
)

// Item type names used across the listing and creation APIs.
const (
	ItemTypeSemanticModel = "SemanticModel"
	ItemTypeNotebook      = "Notebook"
	ItemTypeLakehouse     = "Lakehouse"
	ItemTypeDataPipeline  = "DataPipeline"
)

// Item is any Fabric workspace item.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId,omitempty"`
}

// DeltaTable is one table in a lakehouse.
type DeltaTable struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Location string `json:"location,omitempty"`
	Format   string `json:"format,omitempty"`
}

// SQLEndpoint identifies a lakehouse's SQL analytics endpoint, the
// connection a DirectLake model binds to.
type SQLEndpoint struct {
	ConnectionString   string `json:"connectionString"`
	ID                 string `json:"id"`
	ProvisioningStatus string `json:"provisioningStatus,omitempty"`
}

// DefinitionPart is one file in an item definition payload.
type DefinitionPart struct {
	Path        string `json:"path"`
	Payload     string `json:"payload"`
	PayloadType string `json:"payloadType"`
}

// Definition is the full multi-part item definition.
type Definition struct {
	Parts []DefinitionPart `json:"parts"`
}

// ListItems lists workspace items, optionally filtered by item type.
func (c *Client) ListItems(ctx context.Context, workspaceID, itemType string) ([]Item, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/items")
	if itemType != "" {
		target = withQuery(target, "type", itemType)
	}
	return listPages[Item](ctx, c, target)
}

// ListDatasets lists the semantic models in a workspace.
func (c *Client) ListDatasets(ctx context.Context, workspaceID string) ([]Item, error) {
	return c.ListItems(ctx, workspaceID, ItemTypeSemanticModel)
}

// ListNotebooks lists the notebooks in a workspace.
func (c *Client) ListNotebooks(ctx context.Context, workspaceID string) ([]Item, error) {
	return c.ListItems(ctx, workspaceID, ItemTypeNotebook)
}

// ListLakehouses lists the lakehouses in a workspace.
func (c *Client) ListLakehouses(ctx context.Context, workspaceID string) ([]Item, error) {
	return c.ListItems(ctx, workspaceID, ItemTypeLakehouse)
}

// ListDeltaTables lists the delta tables of a lakehouse.
func (c *Client) ListDeltaTables(ctx context.Context, workspaceID, lakehouseID string) ([]DeltaTable, error) {
	if workspaceID == "" || lakehouseID == "" {
		return nil, fmt.Errorf("workspace id and lakehouse id are required")
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/lakehouses/" + url.PathEscape(lakehouseID) + "/tables")
	return listPages[DeltaTable](ctx, c, target)
}

// LakehouseSQLEndpoint returns the SQL analytics endpoint of a lakehouse.
func (c *Client) LakehouseSQLEndpoint(ctx context.Context, workspaceID, lakehouseID string) (SQLEndpoint, error) {
	if workspaceID == "" || lakehouseID == "" {
		return SQLEndpoint{}, fmt.Errorf("workspace id and lakehouse id are required")
	}
	var payload struct {
		Properties struct {
			SQLEndpointProperties SQLEndpoint `json:"sqlEndpointProperties"`
		} `json:"properties"`
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/lakehouses/" + url.PathEscape(lakehouseID))
	if err := c.do(ctx, http.MethodGet, target, nil, &payload); err != nil {
		return SQLEndpoint{}, err
	}
	endpoint := payload.Properties.SQLEndpointProperties
	if endpoint.ConnectionString == "" {
		return SQLEndpoint{}, fmt.Errorf("lakehouse %s has no SQL endpoint yet", lakehouseID)
	}
	return endpoint, nil
}

// GetItemDefinition fetches an item's definition parts. format may be
// empty for the item type's default.
func (c *Client) GetItemDefinition(ctx context.Context, workspaceID, itemID, format string) (Definition, error) {
	if workspaceID == "" || itemID == "" {
		return Definition{}, fmt.Errorf("workspace id and item id are required")
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/items/" + url.PathEscape(itemID) + "/getDefinition")
	if format != "" {
		target = withQuery(target, "format", format)
	}
	var payload struct {
		Definition Definition `json:"definition"`
	}
	if err := c.do(ctx, http.MethodPost, target, nil, &payload); err != nil {
		return Definition{}, err
	}
	return payload.Definition, nil
}

// Part returns the decoded payload of the named definition part.
func (d Definition) Part(path string) ([]byte, error) {
	for _, part := range d.Parts {
		if part.Path != path {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(part.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode part %s: %w", path, err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("definition has no part %q", path)
}

// InlinePart builds a base64 definition part from raw content.
func InlinePart(path string, content []byte) DefinitionPart {
	return DefinitionPart{
		Path:        path,
		Payload:     base64.StdEncoding.EncodeToString(content),
		PayloadType: "InlineBase64",
	}
}

// UpdateItemDefinition replaces an item's definition.
func (c *Client) UpdateItemDefinition(ctx context.Context, workspaceID, itemID string, definition Definition) error {
	if workspaceID == "" || itemID == "" {
		return fmt.Errorf("workspace id and item id are required")
	}
	if len(definition.Parts) == 0 {
		return fmt.Errorf("definition has no parts")
	}
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/items/" + url.PathEscape(itemID) + "/updateDefinition")
	body := map[string]any{"definition": definition}
	return c.do(ctx, http.MethodPost, target, body, nil)
}

// CreateItem creates a workspace item with an inline definition.
func (c *Client) CreateItem(ctx context.Context, workspaceID, displayName, itemType string, definition Definition) (Item, error) {
	if workspaceID == "" {
		return Item{}, fmt.Errorf("workspace id is required")
	}
	if displayName == "" || itemType == "" {
		return Item{}, fmt.Errorf("display name and item type are required")
	}
	body := map[string]any{
		"displayName": displayName,
		"type":        itemType,
	}
	if len(definition.Parts) > 0 {
		body["definition"] = definition
	}
	var created Item
	target := c.fabricURL("/workspaces/" + url.PathEscape(workspaceID) + "/items")
	if err := c.do(ctx, http.MethodPost, target, body, &created); err != nil {
		return Item{}, err
	}
	return created, nil
}
