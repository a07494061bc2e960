package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validDocJSON = `{
  "name": "Minimal",
  "properties": {
    "activities": [
      {
        "name": "Only Step",
        "type": "TridentNotebook",
        "typeProperties": {
          "notebookId": "4a6d9d3c-52f2-4a44-b4b3-b4556e0e54c8",
          "workspaceId": "83d6b5bc-dca9-4c49-b2ff-0f3a54c9c871"
        }
      }
    ]
  }
}`

func TestLintDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "good.json", validDocJSON)
	bad := writeFixture(t, dir, "bad.json", `{"name":"","properties":{"activities":[]}}`)
	writeFixture(t, dir, "notes.txt", "not a pipeline")

	result, err := Lint(dir)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("files = %v", result.Files)
	}
	if result.Clean() {
		t.Fatal("expected diagnostics")
	}
	if len(result.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
	diagnostic := result.Diagnostics[0]
	if diagnostic.File != bad {
		t.Errorf("diagnostic file = %s, want %s", diagnostic.File, bad)
	}
	if !strings.Contains(diagnostic.Message, "pipeline name") {
		t.Errorf("diagnostic message = %q", diagnostic.Message)
	}
}

func TestLintCleanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "good.json", validDocJSON)

	result, err := Lint(dir)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !result.Clean() {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
}

func TestLintReferenceDocument(t *testing.T) {
	result, err := Lint("testdata/nightly-backup.json")
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !result.Clean() {
		t.Fatalf("reference document should lint clean: %+v", result.Diagnostics)
	}
}

func TestLintYAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "pipeline.yaml", "name: Broken\nproperties:\n  activities:\n    - name: a\n      type: \"\"\n      typeProperties: {}\n")

	result, err := Lint(dir)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(result.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
	if !strings.Contains(result.Diagnostics[0].Message, "activity type") {
		t.Fatalf("message = %q", result.Diagnostics[0].Message)
	}
}

func TestLintMissingPath(t *testing.T) {
	if _, err := Lint(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing path")
	}
}
