package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// rpc sends a raw JSON-RPC request through the server and returns the
// marshalled response for substring assertions.
func rpc(t *testing.T, s *Server, method string, params any) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	response := s.MCPServer().HandleMessage(context.Background(), raw)
	out, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) string {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	return rpc(t, s, "tools/call", params)
}

func TestCoreToolsActiveAtStartup(t *testing.T) {
	s := newTestServer(t)

	listing := rpc(t, s, "tools/list", map[string]any{})
	for _, tool := range []string{"get_server_info", "smart_activate_tools", "list_tool_categories"} {
		if !strings.Contains(listing, fmt.Sprintf("%q", tool)) {
			t.Fatalf("tools/list missing core tool %s: %s", tool, listing)
		}
	}
	if strings.Contains(listing, `"list_workspaces"`) {
		t.Fatalf("inactive workspace tool listed at startup: %s", listing)
	}
}

func TestGatedToolReturnsActivationHint(t *testing.T) {
	s := newTestServer(t)

	out := callTool(t, s, "list_workspaces", nil)
	if !strings.Contains(out, "Tool Activation Required") {
		t.Fatalf("expected activation hint, got: %s", out)
	}
	if !strings.Contains(out, "activate_workspace_tools") {
		t.Fatalf("hint should name the activation command, got: %s", out)
	}
}

func TestActivateCategoryUnlocksTools(t *testing.T) {
	s := newTestServer(t)

	out := callTool(t, s, "activate_analysis_tools", nil)
	if !strings.Contains(out, "analysis") {
		t.Fatalf("activation response missing category: %s", out)
	}

	listing := rpc(t, s, "tools/list", map[string]any{})
	if !strings.Contains(listing, `"analyze_tmsl_bpa"`) {
		t.Fatalf("analysis tool not listed after activation: %s", listing)
	}
}

func TestSmartActivateDetectsCategory(t *testing.T) {
	s := newTestServer(t)

	out := callTool(t, s, "smart_activate_tools", map[string]any{
		"user_request": "run a best practice analysis on my semantic model",
	})
	if !strings.Contains(out, "analysis") {
		t.Fatalf("expected analysis category detected: %s", out)
	}

	listing := rpc(t, s, "tools/list", map[string]any{})
	if !strings.Contains(listing, `"generate_bpa_report"`) {
		t.Fatalf("analysis tools should be active after smart activation: %s", listing)
	}
}

func TestSmartActivateWithoutMatchReportsNothing(t *testing.T) {
	s := newTestServer(t)

	out := callTool(t, s, "smart_activate_tools", map[string]any{
		"user_request": "zzzz qqqq",
	})
	if strings.Contains(out, `"isError":true`) {
		t.Fatalf("no-match should not be an error: %s", out)
	}
	listing := rpc(t, s, "tools/list", map[string]any{})
	if strings.Contains(listing, `"list_workspaces"`) {
		t.Fatalf("no category should have been activated: %s", listing)
	}
}

func TestToolWithoutClientReportsMissingCredentials(t *testing.T) {
	s := newTestServer(t)

	callTool(t, s, "activate_workspace_tools", nil)
	out := callTool(t, s, "list_workspaces", nil)
	if !strings.Contains(out, "no Fabric credentials configured") {
		t.Fatalf("expected credentials error, got: %s", out)
	}
}

func TestValidatePipelineDefinitionOffline(t *testing.T) {
	s := newTestServer(t)
	callTool(t, s, "activate_pipeline_tools", nil)

	definition := `{
  "name": "nightly",
  "properties": {
    "activities": [
      {"name": "fetch", "type": "TridentNotebook",
       "typeProperties": {"notebookId": "4a6d9d3c-52f2-4a44-b4b3-b4556e0e54c8",
                          "workspaceId": "83d6b5bc-dca9-4c49-b2ff-0f3a54c9c871"}}
    ]
  }
}`
	out := callTool(t, s, "validate_pipeline_definition", map[string]any{
		"definition": definition,
	})
	if !strings.Contains(out, `\"valid\": true`) && !strings.Contains(out, `"valid": true`) {
		t.Fatalf("expected valid pipeline, got: %s", out)
	}
}

func TestGetServerInfoReportsState(t *testing.T) {
	s := newTestServer(t)

	out := callTool(t, s, "get_server_info", nil)
	for _, want := range []string{"core", "fabricConfigured", "fabrik"} {
		if !strings.Contains(out, want) {
			t.Fatalf("server info missing %q: %s", want, out)
		}
	}
}

func TestGuideResourceRead(t *testing.T) {
	s := newTestServer(t)

	out := rpc(t, s, "resources/read", map[string]any{
		"uri": "fabrik://guides/tool-activation",
	})
	if !strings.Contains(out, "activate_workspace_tools") {
		t.Fatalf("guide body missing activation command: %s", out)
	}
	if !strings.Contains(out, "text/markdown") {
		t.Fatalf("guide should be served as markdown: %s", out)
	}
}

func TestResourceListIncludesGuides(t *testing.T) {
	s := newTestServer(t)

	out := rpc(t, s, "resources/list", map[string]any{})
	if !strings.Contains(out, "fabrik://guides/tool-activation") {
		t.Fatalf("resources/list missing guide: %s", out)
	}
}

func TestModelHealthCheckPrompt(t *testing.T) {
	s := newTestServer(t)

	out := rpc(t, s, "prompts/get", map[string]any{
		"name": "model_health_check",
		"arguments": map[string]string{
			"workspace": "Sales",
			"model":     "Revenue",
		},
	})
	if !strings.Contains(out, "analyze_model_bpa") {
		t.Fatalf("prompt should reference the analysis tool: %s", out)
	}
	if !strings.Contains(out, "Revenue") {
		t.Fatalf("prompt should embed the model name: %s", out)
	}
}
