package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fabrik/internal/config"
)

const (
	fixtureNotebookID  = "11111111-2222-3333-4444-555555555555"
	fixtureWorkspaceID = "66666666-7777-8888-9999-aaaaaaaaaaaa"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func fixtureDefinition(name string) string {
	return `{
  "name": "` + name + `",
  "properties": {
    "activities": [
      {"name": "fetch", "type": "TridentNotebook",
       "typeProperties": {"notebookId": "` + fixtureNotebookID + `",
                          "workspaceId": "` + fixtureWorkspaceID + `"}},
      {"name": "load", "type": "TridentNotebook",
       "dependsOn": [{"activity": "fetch", "dependencyConditions": ["Succeeded"]}],
       "typeProperties": {"notebookId": "` + fixtureNotebookID + `",
                          "workspaceId": "` + fixtureWorkspaceID + `"}}
    ]
  }
}`
}

func captureDeps() (commandDeps, *bytes.Buffer, *bytes.Buffer) {
	deps := defaultCommandDeps()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	deps.Stdout = stdout
	deps.Stderr = stderr
	return deps, stdout, stderr
}

func TestPipelineValidateCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()
	path := writeFixture(t, "nightly.json", fixtureDefinition("nightly"))

	if code := runPipeline([]string{"validate", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "nightly: valid (2 activities)") {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestPipelineValidateCommandRejectsBadDefinition(t *testing.T) {
	deps, _, stderr := captureDeps()
	bad := `{"name": "broken", "properties": {"activities": [
		{"name": "a", "type": "TridentNotebook",
		 "dependsOn": [{"activity": "missing", "dependencyConditions": ["Succeeded"]}],
		 "typeProperties": {"notebookId": "` + fixtureNotebookID + `",
		                    "workspaceId": "` + fixtureWorkspaceID + `"}}]}}`
	path := writeFixture(t, "broken.json", bad)

	if code := runPipeline([]string{"validate", path}, deps); code != exitError {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "missing") {
		t.Fatalf("expected the unknown dependency in the error, got %q", stderr.String())
	}
}

func TestPipelineOrderCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()
	path := writeFixture(t, "nightly.json", fixtureDefinition("nightly"))

	if code := runPipeline([]string{"order", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "wave 1: fetch") || !strings.Contains(out, "wave 2: load") {
		t.Fatalf("unexpected waves: %q", out)
	}
}

func TestPipelineSchemaCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()

	if code := runPipeline([]string{"schema"}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "activities") {
		t.Fatalf("expected schema output, got %q", stdout.String())
	}
}

func TestPipelineRunCommandDryRun(t *testing.T) {
	deps, stdout, _ := captureDeps()
	path := writeFixture(t, "nightly.json", fixtureDefinition("nightly"))

	if code := runPipeline([]string{"run", "--dry-run", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "Succeeded") || !strings.Contains(out, "fetch") {
		t.Fatalf("unexpected run output: %q", out)
	}
}

func TestPipelineUsageErrors(t *testing.T) {
	deps, _, _ := captureDeps()
	cases := [][]string{
		nil,
		{"bogus"},
		{"validate"},
		{"order", "a", "b"},
	}
	for _, args := range cases {
		if code := runPipeline(args, deps); code != exitUsage {
			t.Fatalf("args %v: expected usage exit code, got %d", args, code)
		}
	}
}

func TestTMSLValidateCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()
	doc := `{"createOrReplace": {"object": {"database": "Sales"}, "database": {
		"name": "Sales", "compatibilityLevel": 1604, "model": {
			"expressions": [{"name": "DatabaseQuery", "kind": "m", "expression": "let Source = x in Source"}],
			"tables": [{"name": "Fact", "columns": [{"name": "Amount", "dataType": "decimal"}],
				"partitions": [{"name": "Fact", "mode": "directLake",
					"source": {"type": "entity", "entityName": "fact", "expressionSource": "DatabaseQuery"}}]}]}}}}`
	path := writeFixture(t, "model.tmsl", doc)

	if code := runTMSL([]string{"validate", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d: %s", code, stdout.String())
	}
}

func TestTMSLValidateCommandFlagsMissingExpression(t *testing.T) {
	deps, stdout, _ := captureDeps()
	doc := `{"createOrReplace": {"object": {"database": "Sales"}, "database": {
		"name": "Sales", "compatibilityLevel": 1604, "model": {
			"tables": [{"name": "Fact", "columns": [{"name": "Amount", "dataType": "decimal"}],
				"partitions": [{"name": "Fact", "mode": "directLake",
					"source": {"type": "entity", "entityName": "fact"}}]}]}}}}`
	path := writeFixture(t, "model.tmsl", doc)

	if code := runTMSL([]string{"validate", path}, deps); code != exitError {
		t.Fatalf("expected failure, got %d: %s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "error:") {
		t.Fatalf("expected error lines, got %q", stdout.String())
	}
}

func TestTMSLNormalizeCommandIsDeterministic(t *testing.T) {
	deps, stdout, _ := captureDeps()
	doc := `{"model": {"tables": [
		{"name": "zeta", "columns": [{"name": "b", "dataType": "String"}]},
		{"name": "alpha", "columns": [{"name": "a", "dataType": "Int64"}]}]}}`
	path := writeFixture(t, "model.json", doc)

	if code := runTMSL([]string{"normalize", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	first := stdout.String()
	if strings.Index(first, "alpha") > strings.Index(first, "zeta") {
		t.Fatal("expected tables sorted by name")
	}

	stdout.Reset()
	if code := runTMSL([]string{"normalize", path}, deps); code != exitOK {
		t.Fatalf("expected success on second pass, got %d", code)
	}
	if first != stdout.String() {
		t.Fatal("normalize output is not deterministic")
	}
}

func TestTMSLTemplateCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()
	opts := `{"modelName": "Sales", "server": "sql.fabric.example", "endpointId": "abc",
		"tables": [{"name": "fact", "columns": [{"name": "amount", "sqlType": "decimal(18,2)"}]}]}`
	path := writeFixture(t, "opts.json", opts)

	if code := runTMSL([]string{"template", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "createOrReplace") || !strings.Contains(out, "1604") {
		t.Fatalf("unexpected template output: %q", out)
	}
}

func TestBPARulesCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()

	if code := runBPA([]string{"rules"}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "ERROR") && !strings.Contains(stdout.String(), "WARNING") {
		t.Fatalf("expected rule listing, got %q", stdout.String())
	}
}

func TestBPAAnalyzeCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()
	doc := `{"model": {"tables": [{"name": "Fact", "columns": [
		{"name": "Amount", "dataType": "double"}]}]}}`
	path := writeFixture(t, "model.json", doc)

	if code := runBPA([]string{"analyze", path}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Best Practice Analysis") {
		t.Fatalf("expected report header, got %q", stdout.String())
	}
}

func TestBPAAnalyzeMinSeverityFails(t *testing.T) {
	deps, _, _ := captureDeps()
	doc := `{"model": {"tables": [{"name": "Fact", "columns": [
		{"name": "Amount", "dataType": "double"}]}]}}`
	path := writeFixture(t, "model.json", doc)

	if code := runBPA([]string{"analyze", "--min-severity", "info", path}, deps); code != exitError {
		t.Fatalf("expected failure with violations at info floor, got %d", code)
	}
}

func TestDocsListCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()

	if code := runDocs([]string{"list"}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "tool-activation") {
		t.Fatalf("expected guide slugs, got %q", stdout.String())
	}
}

func TestDocsLintCommand(t *testing.T) {
	deps, stdout, _ := captureDeps()

	if code := runDocs([]string{"lint"}, deps); code != exitOK {
		t.Fatalf("expected clean guides, got %d", code)
	}
	if !strings.Contains(stdout.String(), "guides ok") {
		t.Fatalf("unexpected lint output: %q", stdout.String())
	}
}

func TestBackupListEmptyStore(t *testing.T) {
	deps, stdout, _ := captureDeps()
	setBackupConfig(t, t.TempDir())

	if code := runBackup([]string{"list"}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "no backups") {
		t.Fatalf("expected empty listing, got %q", stdout.String())
	}
}

// setBackupConfig points FABRIK_CONFIG at a settings file whose backup
// store lives under dir, keeping the test out of the working directory.
func setBackupConfig(t *testing.T, dir string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "fabrik.toml")
	if err := os.WriteFile(configPath, []byte("[backup]\ndir = \""+dir+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FABRIK_CONFIG", configPath)
}

func TestBackupLifecycleOffline(t *testing.T) {
	deps, stdout, _ := captureDeps()
	setBackupConfig(t, t.TempDir())

	store, err := openBackupStore(loadSettingsForTest(t).Backup, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	entry, err := store.Import([]byte(`{"model": {"tables": []}}`), "ws-1", "model-1", "Sales")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if code := runBackup([]string{"list"}, deps); code != exitOK {
		t.Fatalf("list: expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), entry.ID) {
		t.Fatalf("expected entry in listing, got %q", stdout.String())
	}

	stdout.Reset()
	if code := runBackup([]string{"restore", entry.ID}, deps); code != exitOK {
		t.Fatalf("restore: expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "tables") {
		t.Fatalf("expected restored TMSL, got %q", stdout.String())
	}

	stdout.Reset()
	if code := runBackup([]string{"prune", "--retention-days", "30"}, deps); code != exitOK {
		t.Fatalf("prune: expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "removed 0 backups") {
		t.Fatalf("expected fresh snapshot to survive prune, got %q", stdout.String())
	}
}

func TestConfigInitCreatesAndThenKeepsSettingsFile(t *testing.T) {
	deps, stdout, _ := captureDeps()
	path := filepath.Join(t.TempDir(), "fabrik.toml")
	t.Setenv("FABRIK_CONFIG", path)

	if code := runConfig([]string{"init"}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "wrote") {
		t.Fatalf("expected the file to be written, got %q", stdout.String())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("settings file missing: %v", err)
	}

	stdout.Reset()
	if code := runConfig([]string{"init"}, deps); code != exitOK {
		t.Fatalf("expected success on second init, got %d", code)
	}
	if !strings.Contains(stdout.String(), "up to date") {
		t.Fatalf("expected no rewrite, got %q", stdout.String())
	}
}

func TestConfigInstallWritesAssets(t *testing.T) {
	deps, stdout, _ := captureDeps()
	dir := t.TempDir()

	if code := runConfig([]string{"install", dir}, deps); code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	if !strings.Contains(stdout.String(), "installed") {
		t.Fatalf("expected installed assets, got %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "fabrik.toml")); err != nil {
		t.Fatalf("expected fabrik.toml to be installed: %v", err)
	}
}

func loadSettingsForTest(t *testing.T) config.Settings {
	t.Helper()
	settings, err := loadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return settings
}
